package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"currex/internal/alerting"
	"currex/internal/cache"
	"currex/internal/config"
	"currex/internal/fetcher"
	"currex/internal/kv"
	"currex/internal/rates"
	"currex/internal/scheduler"
	"currex/internal/service"
	"currex/internal/storage"
	"currex/internal/widget"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	current    *fetcher.Current
	historical *fetcher.Historical
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// fetchers builds the rate clients once. Both share one parser; each owns
// its cache for the life of the process.
func (a *App) fetchers() (*fetcher.Current, *fetcher.Historical, error) {
	if a.current != nil {
		return a.current, a.historical, nil
	}

	opts := fetcher.Options{
		BaseURL:   a.Config.API.BaseURL,
		Username:  a.Config.API.Username,
		Password:  a.Config.API.Password,
		Timeout:   a.Config.API.RequestTimeout,
		UserAgent: a.Config.API.UserAgent,
	}
	parser := rates.NewParser(a.Config.Rates.Banks, a.Logger)

	current, err := fetcher.NewCurrent(opts,
		cache.New[rates.CurrencySnapshot]("current", a.Config.Cache.CurrentTTL),
		parser, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	historical, err := fetcher.NewHistorical(opts,
		cache.New[rates.HistoricalSeries]("historical", a.Config.Cache.HistoricalTTL),
		parser, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	a.current, a.historical = current, historical
	return current, historical, nil
}

func (a *App) newNotifier() alerting.Notifier {
	var out alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				out = append(out, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
			}
		case "log":
			out = append(out, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openWidget(ctx context.Context, readOnly bool) (*widget.Store, func(), error) {
	backend, err := kv.Open(ctx, a.Config.Widget, kv.OpenOptions{ReadOnly: readOnly}, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := backend.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close widget store")
		}
	}
	return widget.NewStore(backend, a.Logger), closer, nil
}

// refresher bundles what a refresh process holds open.
type refresher struct {
	service *service.Service
	widget  *widget.Store
	archive *storage.Store
	close   func()
}

func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*refresher, error) {
	current, historical, err := a.fetchers()
	if err != nil {
		return nil, err
	}

	widgetStore, closeWidget, err := a.openWidget(ctx, false)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		closeWidget()
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	}

	deps := service.Deps{
		Scheduler:  sched,
		Current:    current,
		Historical: historical,
		Widget:     widgetStore,
		Notifier:   a.newNotifier(),
	}
	if store != nil {
		deps.Archive = store
		deps.AlertStore = store
		deps.Locker = store
	}

	closer := func() {
		if closeStore != nil {
			closeStore()
		}
		closeWidget()
	}
	return &refresher{
		service: service.New(a.Config, deps, a.Logger),
		widget:  widgetStore,
		archive: store,
		close:   closer,
	}, nil
}

// Run executes the long-running refresh service, optionally serving the read
// API from the same process.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunImmediately,
	}, a.Logger)

	rt, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	defer rt.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Strs("currencies", a.Config.Rates.Currencies).Msg("starting refresh service")
		return rt.service.Run(gctx)
	})
	if opts.Serve {
		g.Go(func() error {
			return a.newAPI(a.current, a.historical, rt.widget, rt.archive).
				ListenAndServe(gctx, a.Config.Server.Addr)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("refresh service stopped")
	return nil
}

// RunOptions configure the run command.
type RunOptions struct {
	Serve bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Currencies []string
}

// HistoryOptions configure the history command and its exports.
type HistoryOptions struct {
	Currency    string
	Period      int
	Banks       []string
	FromArchive bool
	CSVPath     string
	PNGPath     string
	MaxPoints   int
}

// WidgetOptions configure the widget command.
type WidgetOptions struct {
	Currency string
	Select   string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Currencies []string
	Period     int
	DryRun     bool
}

// SimulateOptions describe a synthetic best-rate move.
type SimulateOptions struct {
	Currency string
	Side     string
	Previous decimal.Decimal
	Current  decimal.Decimal
}
