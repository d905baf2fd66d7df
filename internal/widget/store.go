// Package widget implements the handoff between the refresh process and the
// widget consumer process over a shared key-value store.
package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"currex/internal/kv"
	"currex/internal/metrics"
)

const (
	// DataKey is the slot holding the serialised Snapshot.
	DataKey = "widgetExchangeRateData"
	// LastUpdateKey records when DataKey was last written.
	LastUpdateKey = "lastUpdateTime"
	// SettingsKey holds the consumer's Settings.
	SettingsKey = "widgetSettings"

	// DefaultCurrency is shown when no selection was ever made.
	DefaultCurrency = "USD"
)

// Settings are the widget consumer's preferences.
type Settings struct {
	SelectedCurrency string `json:"selectedCurrency"`
}

// Store reads and writes snapshots through a kv.Store.
type Store struct {
	kv     kv.Store
	logger zerolog.Logger
}

// NewStore wraps backend.
func NewStore(backend kv.Store, logger zerolog.Logger) *Store {
	return &Store{
		kv:     backend,
		logger: logger.With().Str("component", "widget").Logger(),
	}
}

// Write replaces the stored snapshot as a whole and stamps the update marker.
func (s *Store) Write(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		metrics.WidgetWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("widget: encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, DataKey, payload); err != nil {
		metrics.WidgetWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("widget: write snapshot: %w", err)
	}

	stamp := snap.LastUpdated
	if stamp.IsZero() {
		stamp = time.Now()
	}
	if err := s.kv.Set(ctx, LastUpdateKey, []byte(stamp.UTC().Format(time.RFC3339Nano))); err != nil {
		metrics.WidgetWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("widget: write update marker: %w", err)
	}

	metrics.WidgetWrites.WithLabelValues("ok").Inc()
	s.logger.Debug().
		Int("currencies", len(snap.Currencies())).
		Int("bytes", len(payload)).
		Msg("widget snapshot written")
	return nil
}

// Read returns the stored snapshot, or false when nothing usable is stored.
func (s *Store) Read(ctx context.Context) (Snapshot, bool) {
	payload, err := s.kv.Get(ctx, DataKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("read widget snapshot")
		}
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		s.logger.Warn().Err(err).Msg("decode widget snapshot")
		return Snapshot{}, false
	}
	return snap, true
}

// LastUpdate returns the time of the last successful Write.
func (s *Store) LastUpdate(ctx context.Context) (time.Time, bool) {
	raw, err := s.kv.Get(ctx, LastUpdateKey)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		s.logger.Warn().Err(err).Str("raw", string(raw)).Msg("parse widget update marker")
		return time.Time{}, false
	}
	return ts, true
}

// ReadSettings returns the stored settings, falling back to DefaultCurrency.
func (s *Store) ReadSettings(ctx context.Context) Settings {
	def := Settings{SelectedCurrency: DefaultCurrency}

	raw, err := s.kv.Get(ctx, SettingsKey)
	if err != nil {
		return def
	}
	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.SelectedCurrency) == "" {
		return def
	}
	return out
}

// WriteSettings persists settings with an upper-cased currency code.
func (s *Store) WriteSettings(ctx context.Context, settings Settings) error {
	settings.SelectedCurrency = strings.ToUpper(strings.TrimSpace(settings.SelectedCurrency))
	if settings.SelectedCurrency == "" {
		return errors.New("widget: selected currency is empty")
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("widget: encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, SettingsKey, payload); err != nil {
		return fmt.Errorf("widget: write settings: %w", err)
	}
	return nil
}
