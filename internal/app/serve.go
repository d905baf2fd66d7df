package app

import (
	"context"
	"os/signal"
	"syscall"

	"currex/internal/api"
	"currex/internal/fetcher"
	"currex/internal/storage"
)

// Serve runs the read API until interrupted. The widget store is opened
// read-only so a separate refresher keeps its writer lock.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	current, historical, err := a.fetchers()
	if err != nil {
		return err
	}

	archive, closeArchive, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("quote archive unavailable; archive routes disabled")
		archive = nil
	} else if closeArchive != nil {
		defer closeArchive()
	}

	store, closeStore, err := a.openWidget(ctx, true)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("widget store unavailable; widget routes disabled")
		return a.newAPI(current, historical, nil, archive).ListenAndServe(ctx, a.Config.Server.Addr)
	}
	defer closeStore()

	return a.newAPI(current, historical, store, archive).ListenAndServe(ctx, a.Config.Server.Addr)
}

// newAPI builds the read API. A nil archive leaves the archive routes answering 503.
func (a *App) newAPI(current fetcher.CurrentRatesFetcher, historical fetcher.HistoricalRatesFetcher, reader api.WidgetReader, archive *storage.Store) *api.Server {
	srv := api.NewServer(a.Config, current, historical, reader, a.Logger)
	if archive != nil {
		srv.WithArchive(archive)
	}
	return srv
}
