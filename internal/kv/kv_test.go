package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"currex/internal/config"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	file, err := NewFile(filepath.Join(t.TempDir(), "file"))
	require.NoError(t, err)

	bdg, err := OpenBadger(filepath.Join(t.TempDir(), "badger"), false)
	require.NoError(t, err)

	lite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "sqlite", "widget.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"badger": bdg,
		"sqlite": lite,
	}

	if addr := os.Getenv("CURREX_TEST_REDIS_ADDR"); addr != "" {
		rds, err := OpenRedis(ctx, config.RedisConfig{Addr: addr, Prefix: "currex-test:" + t.Name() + ":"}, zerolog.Nop())
		require.NoError(t, err)
		stores["redis"] = rds
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "widgetExchangeRateData")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "widgetExchangeRateData", []byte(`{"v":1}`)))
			got, err := store.Get(ctx, "widgetExchangeRateData")
			require.NoError(t, err)
			require.JSONEq(t, `{"v":1}`, string(got))

			// whole-value overwrite
			require.NoError(t, store.Set(ctx, "widgetExchangeRateData", []byte(`{"v":2}`)))
			got, err = store.Get(ctx, "widgetExchangeRateData")
			require.NoError(t, err)
			require.JSONEq(t, `{"v":2}`, string(got))

			require.NoError(t, store.Set(ctx, "lastUpdateTime", []byte("2025-03-05T12:00:00Z")))
			got, err = store.Get(ctx, "widgetExchangeRateData")
			require.NoError(t, err)
			require.JSONEq(t, `{"v":2}`, string(got), "keys are independent")

			require.Error(t, store.Set(ctx, "../escape", []byte("x")))
		})
	}
}

func TestFileStoreVisibleToSecondHandle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := NewFile(dir)
	require.NoError(t, err)
	reader, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "k", []byte("payload")))
	got, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSQLiteStoreVisibleToSecondHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "widget.db")

	writer, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, writer.Set(ctx, "k", []byte("payload")))
	got, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"memory", "file", "badger", "sqlite"} {
		store, err := Open(ctx, config.WidgetConfig{Backend: backend, Path: t.TempDir()}, OpenOptions{}, zerolog.Nop())
		require.NoError(t, err, backend)
		require.NoError(t, store.Close())
	}

	_, err := Open(ctx, config.WidgetConfig{Backend: "etcd"}, OpenOptions{}, zerolog.Nop())
	require.Error(t, err)
}
