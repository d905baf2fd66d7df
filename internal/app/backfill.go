package app

import (
	"context"
	"errors"
	"fmt"

	"currex/internal/service"
	"currex/internal/storage"
)

// Backfill archives a historical period for each currency.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	currencies := opts.Currencies
	if len(currencies) == 0 {
		currencies = a.Config.Rates.Currencies
	}
	period := a.Config.ResolvePeriod(opts.Period)

	_, historical, err := a.fetchers()
	if err != nil {
		return err
	}

	deps := service.Deps{Historical: historical}
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("backfill needs database.dsn: %w", storage.ErrNotConfigured)
		}
		defer closeStore()
		deps.Archive = store
	}

	svc := service.New(a.Config, deps, a.Logger)

	processed, failed := 0, 0
	for _, cur := range currencies {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := svc.Backfill(ctx, cur, period, opts.DryRun)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("currency", cur).Msg("backfill failed")
			continue
		}
		processed += n
		fmt.Fprintf(a.Out, "%s\t%d samples\n", cur, n)
	}

	a.Logger.Info().Int("samples", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("backfill failed for some currencies; see log")
	}
	return nil
}
