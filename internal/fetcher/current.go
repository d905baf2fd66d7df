package fetcher

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"currex/internal/cache"
	"currex/internal/rates"
)

// Current fetches current bank quotes, serving repeats from a short-lived cache.
type Current struct {
	api    *apiClient
	cache  *cache.TTL[rates.CurrencySnapshot]
	parser *rates.Parser
	logger zerolog.Logger
}

// NewCurrent constructs a current-rates client. A nil store gets a private
// cache with the default freshness window; a nil parser discovers banks from payloads.
func NewCurrent(opts Options, store *cache.TTL[rates.CurrencySnapshot], parser *rates.Parser, logger zerolog.Logger) (*Current, error) {
	logger = logger.With().Str("component", "current_fetcher").Logger()

	api, err := newAPIClient(opts, logger)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = cache.New[rates.CurrencySnapshot]("current", cache.CurrentRatesTTL)
	}
	if parser == nil {
		parser = rates.NewParser(nil, logger)
	}

	return &Current{api: api, cache: store, parser: parser, logger: logger}, nil
}

// FetchCurrent returns the quotes of every bank for currency.
func (c *Current) FetchCurrent(ctx context.Context, currency string) (rates.CurrencySnapshot, error) {
	const op = "fetch current rates"

	code, err := normaliseCurrency(op, currency)
	if err != nil {
		return rates.CurrencySnapshot{}, err
	}

	if snap, ok := c.cache.Get(code); ok {
		c.logger.Debug().Str("currency", code).Msg("current rates served from cache")
		return snap.Clone(), nil
	}

	endpoint, err := c.api.endpoint(op, currentRatesPath, url.Values{"currency": {code}})
	if err != nil {
		return rates.CurrencySnapshot{}, err
	}

	body, err := c.api.get(ctx, op, "current", endpoint)
	if err != nil {
		return rates.CurrencySnapshot{}, err
	}

	snap, err := c.parser.Current(code, body)
	if err != nil {
		return rates.CurrencySnapshot{}, newError(ErrDecode, op, err)
	}

	c.cache.Put(code, snap.Clone())
	c.logger.Info().Str("currency", code).Int("banks", len(snap.Quotes)).
		Str("server_ts", snap.Timestamp).Msg("current rates fetched")
	return snap, nil
}

var _ CurrentRatesFetcher = (*Current)(nil)
