package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
api:
  base_url: "https://rates.example.com/"
  username: user
  password: secret
  request_timeout: 3s
rates:
  currencies: [" usd ", "eur", "USD"]
  banks: ["Alpha", " ", "Beta"]
cache:
  current_ttl: 1m
widget:
  backend: " SQLite "
  path: /tmp/currex
scheduler:
  interval: 2m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "https://rates.example.com", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.RequestTimeout)
	require.Equal(t, []string{"USD", "EUR"}, cfg.Rates.Currencies)
	require.Equal(t, []string{"Alpha", "Beta"}, cfg.Rates.Banks)
	require.Equal(t, time.Minute, cfg.Cache.CurrentTTL)
	require.Equal(t, 30*time.Minute, cfg.Cache.HistoricalTTL, "default historical ttl")
	require.Equal(t, "sqlite", cfg.Widget.Backend)
	require.Equal(t, 2*time.Minute, cfg.Scheduler.Interval)
	require.Equal(t, 7, cfg.Rates.DefaultPeriod)
	require.True(t, cfg.Widget.IncludeAllRates)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CURREX_API_USERNAME", "env-user")
	t.Setenv("CURREX_RATES_CURRENCIES", "gbp,chf")
	t.Setenv("CURREX_CACHE_HISTORICAL_TTL", "45m")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "env-user", cfg.API.Username)
	require.Equal(t, []string{"GBP", "CHF"}, cfg.Rates.Currencies)
	require.Equal(t, 45*time.Minute, cfg.Cache.HistoricalTTL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, sampleYAML+"\nexport:\n  max_data_points: 1\n"))
	require.Error(t, err)

	bad := `
widget:
  backend: etcd
`
	_, err = Load(writeConfig(t, bad))
	require.ErrorContains(t, err, "widget.backend")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Cache.CurrentTTL = time.Minute
		cfg.Cache.HistoricalTTL = time.Minute
		cfg.Rates.Currencies = []string{"USD"}
		cfg.Rates.DefaultPeriod = 7
		cfg.Scheduler.Interval = 2 * time.Minute
		cfg.Widget.Backend = "memory"
		cfg.Export.MaxDataPoints = 100
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Rates.Currencies = nil
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Widget.Backend = "file"
	require.Error(t, cfg.Validate(), "file backend needs a path")

	cfg = valid()
	cfg.Widget.Backend = "redis"
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Alerting.Telegram.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Scheduler.Interval = cfg.Cache.CurrentTTL
	require.ErrorContains(t, cfg.Validate(), "cache.current_ttl", "interval equal to the cache window")
}

func TestDefaultIntervalOutlivesCurrentTTL(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rates:\n  currencies: [USD]\n"))
	require.NoError(t, err)
	require.Greater(t, cfg.Scheduler.Interval, cfg.Cache.CurrentTTL)
	require.Equal(t, 5*time.Minute, cfg.Cache.CurrentTTL)
}

func TestResolveOverrides(t *testing.T) {
	cfg := &Config{}
	cfg.Rates.DefaultPeriod = 7
	cfg.Export.MaxDataPoints = 2000

	require.Equal(t, 7, cfg.ResolvePeriod(0))
	require.Equal(t, 30, cfg.ResolvePeriod(30))
	require.Equal(t, 2000, cfg.ResolveMaxPoints(1))
	require.Equal(t, 50, cfg.ResolveMaxPoints(50))
}
