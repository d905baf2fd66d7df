package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"currex/internal/cache"
	"currex/internal/rates"
)

// Historical fetches per-bank rate series over a period of days.
type Historical struct {
	api    *apiClient
	cache  *cache.TTL[rates.HistoricalSeries]
	parser *rates.Parser
	logger zerolog.Logger
}

// NewHistorical constructs a historical-rates client. A nil store gets a
// private cache with the default 30 minute window.
func NewHistorical(opts Options, store *cache.TTL[rates.HistoricalSeries], parser *rates.Parser, logger zerolog.Logger) (*Historical, error) {
	logger = logger.With().Str("component", "historical_fetcher").Logger()

	api, err := newAPIClient(opts, logger)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = cache.New[rates.HistoricalSeries]("historical", cache.HistoricalRatesTTL)
	}
	if parser == nil {
		parser = rates.NewParser(nil, logger)
	}

	return &Historical{api: api, cache: store, parser: parser, logger: logger}, nil
}

// FetchHistorical returns the series for currency over the last periodDays days.
func (h *Historical) FetchHistorical(ctx context.Context, currency string, periodDays int) (rates.HistoricalSeries, error) {
	const op = "fetch historical rates"

	code, err := normaliseCurrency(op, currency)
	if err != nil {
		return rates.HistoricalSeries{}, err
	}
	if periodDays <= 0 {
		return rates.HistoricalSeries{}, newError(ErrInvalidRequest, op, fmt.Errorf("period must be positive, got %d", periodDays))
	}

	key := cache.HistoricalKey(code, periodDays)
	if series, ok := h.cache.Get(key); ok {
		h.logger.Debug().Str("key", key).Msg("historical rates served from cache")
		return series.Clone(), nil
	}

	endpoint, err := h.api.endpoint(op, historicalRatesPath, url.Values{
		"currency": {code},
		"period":   {strconv.Itoa(periodDays)},
	})
	if err != nil {
		return rates.HistoricalSeries{}, err
	}

	body, err := h.api.get(ctx, op, "historical", endpoint)
	if err != nil {
		return rates.HistoricalSeries{}, err
	}

	series, err := h.parser.Historical(code, periodDays, body)
	if err != nil {
		return rates.HistoricalSeries{}, newError(ErrDecode, op, err)
	}

	h.cache.Put(key, series.Clone())
	h.logger.Info().Str("currency", code).Int("period_days", periodDays).
		Int("points", len(series.Points)).Msg("historical rates fetched")
	return series, nil
}

var _ HistoricalRatesFetcher = (*Historical)(nil)
