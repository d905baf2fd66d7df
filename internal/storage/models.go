package storage

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"currex/internal/rates"
)

// Sample sources.
const (
	SourceCurrent    = "current"
	SourceHistorical = "historical"
)

// QuoteSample is one archived bank quote.
type QuoteSample struct {
	ObservedAt time.Time       `json:"observed_at"`
	Currency   string          `json:"currency"`
	Bank       string          `json:"bank"`
	Buy        decimal.Decimal `json:"buy"`
	Sell       decimal.Decimal `json:"sell"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AlertRecord captures an emitted best-rate alert for auditing.
type AlertRecord struct {
	ID           int64           `json:"id"`
	Currency     string          `json:"currency"`
	Side         string          `json:"side"`
	Bank         string          `json:"bank"`
	Previous     decimal.Decimal `json:"previous"`
	Current      decimal.Decimal `json:"current"`
	ChangePct    decimal.Decimal `json:"change_pct"`
	ThresholdPct decimal.Decimal `json:"threshold_pct"`
	Channels     []string        `json:"channels"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SamplesFromSnapshot flattens a current-rates snapshot. The server timestamp
// is used when it parses, fallback otherwise.
func SamplesFromSnapshot(snap rates.CurrencySnapshot, fallback time.Time) []QuoteSample {
	observed, ok := snap.ServerTime()
	if !ok {
		observed = fallback
	}
	out := make([]QuoteSample, 0, len(snap.Quotes))
	for _, q := range snap.Quotes {
		out = append(out, QuoteSample{
			ObservedAt: observed.UTC(),
			Currency:   snap.Currency,
			Bank:       q.Bank,
			Buy:        q.Buy,
			Sell:       q.Sell,
			Source:     SourceCurrent,
		})
	}
	return out
}

// SamplesFromSeries flattens every bank entry of every point.
func SamplesFromSeries(series rates.HistoricalSeries) []QuoteSample {
	var out []QuoteSample
	for _, p := range series.Points {
		for _, bank := range sortedBanks(p.Banks) {
			r := p.Banks[bank]
			out = append(out, QuoteSample{
				ObservedAt: p.At.UTC(),
				Currency:   series.Currency,
				Bank:       bank,
				Buy:        r.Buy,
				Sell:       r.Sell,
				Source:     SourceHistorical,
			})
		}
	}
	return out
}

// SeriesFromSamples regroups archived samples (ordered by time) into a series.
func SeriesFromSamples(currency string, samples []QuoteSample) rates.HistoricalSeries {
	series := rates.HistoricalSeries{Currency: currency}
	for _, s := range samples {
		n := len(series.Points)
		if n == 0 || !series.Points[n-1].At.Equal(s.ObservedAt) {
			series.Points = append(series.Points, rates.HistoricalPoint{
				At:    s.ObservedAt,
				Banks: make(map[string]rates.BankRate),
			})
			n++
		}
		series.Points[n-1].Banks[s.Bank] = rates.BankRate{Buy: s.Buy, Sell: s.Sell}
	}
	return series
}

func sortedBanks(banks map[string]rates.BankRate) []string {
	out := make([]string, 0, len(banks))
	for b := range banks {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
