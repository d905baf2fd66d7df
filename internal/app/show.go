package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"currex/internal/rates"
	"currex/internal/widget"
)

// Refresh performs a single full refresh and prints the best rates written.
func (a *App) Refresh(ctx context.Context) error {
	rt, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	snap, err := rt.service.Refresh(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Currency\tBest buy\tBank\tBest sell\tBank")
	for _, cur := range snap.Currencies() {
		buy, sell := snap.Best(cur).Buy, snap.Best(cur).Sell
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", cur, rateOf(buy, true), bankOf(buy), rateOf(sell, false), bankOf(sell))
	}
	fmt.Fprintf(writer, "Updated\t%s\n", snap.LastUpdated.Format(time.RFC3339))
	return writer.Flush()
}

// Show prints the current quotes of every bank for each currency.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	current, _, err := a.fetchers()
	if err != nil {
		return err
	}

	currencies := opts.Currencies
	if len(currencies) == 0 {
		currencies = a.Config.Rates.Currencies
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	for i, cur := range currencies {
		snap, err := current.FetchCurrent(ctx, cur)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(writer)
		}
		writeQuotes(writer, snap.Currency, snap.Timestamp, snap.Quotes)
	}
	return writer.Flush()
}

// Widget prints what a widget consumer sees. With Select set the selection is
// persisted first.
func (a *App) Widget(ctx context.Context, opts WidgetOptions) error {
	store, closeStore, err := a.openWidget(ctx, opts.Select == "")
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Select != "" {
		if err := store.WriteSettings(ctx, widget.Settings{SelectedCurrency: opts.Select}); err != nil {
			return err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = store.ReadSettings(ctx).SelectedCurrency
	}

	snap, ok := store.Read(ctx)
	if !ok {
		fmt.Fprintln(a.Out, "no widget data yet; run `currex refresh` first")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	writeQuotes(writer, currency, snap.LastUpdated.Format(time.RFC3339), snap.RatesFor(currency))
	return writer.Flush()
}

func writeQuotes(writer *tabwriter.Writer, currency, stamp string, quotes []rates.BankQuote) {
	fmt.Fprintf(writer, "%s\t(as of %s)\n", currency, stamp)
	if len(quotes) == 0 {
		fmt.Fprintln(writer, "no quotes")
		return
	}

	best := rates.SelectBest(quotes)
	fmt.Fprintln(writer, "Bank\tBuy\tSell\tSpread\t")
	for _, q := range quotes {
		var marks []string
		if best.Buy != nil && best.Buy.Bank == q.Bank {
			marks = append(marks, "best buy")
		}
		if best.Sell != nil && best.Sell.Bank == q.Bank {
			marks = append(marks, "best sell")
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			q.Bank,
			q.Buy.StringFixed(3),
			q.Sell.StringFixed(3),
			q.Spread().StringFixed(3),
			strings.Join(marks, ", "),
		)
	}
}

func rateOf(q *rates.BankQuote, buy bool) string {
	if q == nil {
		return "-"
	}
	if buy {
		return q.Buy.StringFixed(3)
	}
	return q.Sell.StringFixed(3)
}

func bankOf(q *rates.BankQuote) string {
	if q == nil {
		return "-"
	}
	return q.Bank
}
