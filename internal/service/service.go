package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"currex/internal/alerting"
	"currex/internal/config"
	"currex/internal/fetcher"
	"currex/internal/rates"
	"currex/internal/scheduler"
	"currex/internal/storage"
	"currex/internal/widget"
)

// ErrLockHeld is returned by Refresh when another refresher holds the advisory lock.
var ErrLockHeld = errors.New("refresh skipped: advisory lock held elsewhere")

// maxParallelFetches bounds concurrent provider requests in one refresh.
const maxParallelFetches = 4

// SnapshotStore is the widget handoff used by the refresher.
type SnapshotStore interface {
	Write(ctx context.Context, snap widget.Snapshot) error
	Read(ctx context.Context) (widget.Snapshot, bool)
}

// Deps groups the collaborators of a Service. Only Current and Widget are required.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Current    fetcher.CurrentRatesFetcher
	Historical fetcher.HistoricalRatesFetcher
	Widget     SnapshotStore
	Archive    storage.QuoteArchive
	AlertStore storage.AlertStore
	Locker     storage.AdvisoryLocker
	Notifier   alerting.Notifier
	Now        func() time.Time
}

// Service orchestrates fetching, the widget handoff, archiving and alerting.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	currencies []string
	includeAll bool
	threshold  decimal.Decimal
	channels   []string
	alertsOn   bool
	lockKey    int64
}

// New constructs the refresh service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.ThresholdPct)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Locker == nil {
		if l, ok := deps.Archive.(storage.AdvisoryLocker); ok {
			deps.Locker = l
		}
	}

	return &Service{
		deps:       deps,
		logger:     logger.With().Str("component", "service").Logger(),
		currencies: cfg.Rates.Currencies,
		includeAll: cfg.Widget.IncludeAllRates,
		threshold:  threshold,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		_, err := s.Refresh(ctx)
		if errors.Is(err, ErrLockHeld) {
			s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
			return nil
		}
		return err
	})
}

// FetchAll fetches current rates of every configured currency concurrently.
// Results keep the configured currency order. Any failure fails the whole call.
func (s *Service) FetchAll(ctx context.Context) ([]rates.CurrencySnapshot, error) {
	if s.deps.Current == nil {
		return nil, fmt.Errorf("current rates fetcher not configured")
	}
	out := make([]rates.CurrencySnapshot, len(s.currencies))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, cur := range s.currencies {
		i, cur := i, cur
		g.Go(func() error {
			snap, err := s.deps.Current.FetchCurrent(ctx, cur)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", cur, err)
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh performs one full refresh: fetch every currency, hand the best
// rates to the widget, archive the quotes and raise movement alerts. Nothing
// is written unless every currency was fetched.
func (s *Service) Refresh(ctx context.Context) (widget.Snapshot, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return widget.Snapshot{}, err
	}
	if !proceed {
		return widget.Snapshot{}, ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}

	snapshots, err := s.FetchAll(ctx)
	if err != nil {
		return widget.Snapshot{}, err
	}

	now := s.deps.Now().UTC()
	snap := widget.Build(snapshots, s.includeAll, now)

	var previous widget.Snapshot
	var hadPrevious bool
	if s.deps.Widget != nil {
		previous, hadPrevious = s.deps.Widget.Read(ctx)
		if err := s.deps.Widget.Write(ctx, snap); err != nil {
			return widget.Snapshot{}, fmt.Errorf("write widget snapshot: %w", err)
		}
	}

	s.archive(ctx, snapshots, now)
	if hadPrevious {
		s.alert(ctx, previous, snap)
	}

	s.logger.Info().
		Int("currencies", len(snapshots)).
		Time("last_updated", now).
		Msg("refresh complete")
	return snap, nil
}

// Backfill archives a historical period of currency and returns the number of
// samples. With dryRun nothing is written.
func (s *Service) Backfill(ctx context.Context, currency string, periodDays int, dryRun bool) (int, error) {
	if s.deps.Historical == nil {
		return 0, fmt.Errorf("historical rates fetcher not configured")
	}
	series, err := s.deps.Historical.FetchHistorical(ctx, currency, periodDays)
	if err != nil {
		return 0, err
	}
	samples := storage.SamplesFromSeries(series)
	if dryRun {
		return len(samples), nil
	}
	if s.deps.Archive == nil {
		return 0, storage.ErrNotConfigured
	}
	if err := s.deps.Archive.UpsertSamples(ctx, samples); err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("currency", series.Currency).
		Int("period_days", periodDays).
		Int("samples", len(samples)).
		Msg("backfill complete")
	return len(samples), nil
}

func (s *Service) archive(ctx context.Context, snapshots []rates.CurrencySnapshot, now time.Time) {
	if s.deps.Archive == nil {
		return
	}
	var samples []storage.QuoteSample
	for _, snap := range snapshots {
		samples = append(samples, storage.SamplesFromSnapshot(snap, now)...)
	}
	if err := s.deps.Archive.UpsertSamples(ctx, samples); err != nil {
		s.logger.Error().Err(err).Int("samples", len(samples)).Msg("failed to archive quotes")
	}
}

func (s *Service) alert(ctx context.Context, previous, current widget.Snapshot) {
	if !s.alertsOn || s.deps.Notifier == nil || s.threshold.IsZero() {
		return
	}

	for _, cur := range current.Currencies() {
		notes := alerting.Detect(cur, previous.Best(cur), current.Best(cur), s.threshold, current.LastUpdated)
		for _, note := range notes {
			note.Channels = s.channels
			if s.deps.AlertStore != nil {
				record := storage.AlertRecord{
					Currency:     note.Currency,
					Side:         note.Side,
					Bank:         note.Bank,
					Previous:     note.Previous,
					Current:      note.Current,
					ChangePct:    note.ChangePct,
					ThresholdPct: note.ThresholdPct,
					Channels:     s.channels,
				}
				if _, err := s.deps.AlertStore.InsertAlert(ctx, record); err != nil {
					s.logger.Error().Err(err).Str("currency", cur).Msg("failed to persist alert record")
				}
			}
			if err := s.deps.Notifier.Notify(ctx, note); err != nil {
				s.logger.Error().Err(err).Str("currency", cur).Str("side", note.Side).Msg("failed to dispatch alert")
			}
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
