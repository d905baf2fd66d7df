package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currex/internal/alerting"
	"currex/internal/fetcher"
	"currex/internal/kv"
	"currex/internal/rates"
	"currex/internal/service"
	"currex/internal/widget"
)

const simulatedBank = "simulated"

// SimulateAlert 通过给定的前后最优汇率模拟一次完整的刷新与告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	prev := rates.BankQuote{Bank: simulatedBank, Currency: currency, Buy: opts.Previous, Sell: opts.Previous}
	next := prev
	switch opts.Side {
	case alerting.SideBuy:
		next.Buy = opts.Current
	case alerting.SideSell:
		next.Sell = opts.Current
	default:
		return fmt.Errorf("--side must be buy or sell, got %q", opts.Side)
	}

	cfg := *a.Config
	cfg.Rates.Currencies = []string{currency}
	cfg.Widget.IncludeAllRates = false
	cfg.Scheduler.AdvisoryLockKey = 0

	store := widget.NewStore(kv.NewMemory(), zerolog.Nop())
	seed := widget.Build([]rates.CurrencySnapshot{{Currency: currency, Quotes: []rates.BankQuote{prev}}}, false, time.Now())
	if err := store.Write(ctx, seed); err != nil {
		return err
	}

	counter := &countingNotifier{next: notifier}
	svc := service.New(&cfg, service.Deps{
		Current:  staticCurrentFetcher{quote: next},
		Widget:   store,
		Notifier: counter,
	}, a.Logger)
	if _, err := svc.Refresh(ctx); err != nil {
		return err
	}

	if counter.sent == 0 {
		change := alerting.ChangePct(opts.Previous, opts.Current)
		fmt.Fprintf(a.Out, "change %s%% within threshold %.3f%%; no alert sent\n", change.StringFixed(3), cfg.Alerting.ThresholdPct)
		return nil
	}
	fmt.Fprintf(a.Out, "%d alert(s) sent\n", counter.sent)
	return nil
}

type staticCurrentFetcher struct {
	quote rates.BankQuote
}

func (s staticCurrentFetcher) FetchCurrent(_ context.Context, currency string) (rates.CurrencySnapshot, error) {
	return rates.CurrencySnapshot{Currency: currency, Quotes: []rates.BankQuote{s.quote}}, nil
}

type countingNotifier struct {
	next alerting.Notifier
	sent int
}

func (c *countingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	note.AdditionalMsg = "(simulated)"
	if err := c.next.Notify(ctx, note); err != nil {
		return err
	}
	c.sent++
	return nil
}

var (
	_ fetcher.CurrentRatesFetcher = staticCurrentFetcher{}
	_ alerting.Notifier           = (*countingNotifier)(nil)
)

// ParseRate parses a CLI rate argument rounded to three places.
func ParseRate(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid rate %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("rate %q must be positive", raw)
	}
	return rates.Round3(d), nil
}
