package fetcher

import (
	"context"

	"currex/internal/rates"
)

// CurrentRatesFetcher retrieves the latest per-bank quotes for a currency.
type CurrentRatesFetcher interface {
	FetchCurrent(ctx context.Context, currency string) (rates.CurrencySnapshot, error)
}

// HistoricalRatesFetcher retrieves a per-bank time series for a currency.
type HistoricalRatesFetcher interface {
	FetchHistorical(ctx context.Context, currency string, periodDays int) (rates.HistoricalSeries, error)
}
