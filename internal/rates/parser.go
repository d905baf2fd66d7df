package rates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currex/internal/metrics"
)

const timestampField = "timestamp"

// Round3 rounds to three decimals, half away from zero.
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// ParseInstant parses an RFC 3339 timestamp that must carry fractional seconds.
func ParseInstant(s string) (time.Time, bool) {
	// "2006-01-02T15:04:05" is 19 bytes; a fraction must follow immediately.
	if len(s) < 21 || s[19] != '.' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// wireRecord is one bank rate record as served by the provider.
type wireRecord struct {
	BaseCurrency string `json:"base_currency"`
	Currency     string `json:"currency"`
	RateBuy      string `json:"rate_buy"`
	RateSell     string `json:"rate_sell"`
}

type historicalResponse struct {
	Currency   string           `json:"currency"`
	PeriodDays int              `json:"period_days"`
	Data       []historicalItem `json:"data"`
}

type historicalItem struct {
	Timestamp string                  `json:"timestamp"`
	Rates     map[string][]wireRecord `json:"rates"`
}

// Parser normalises provider payloads into snapshots and series.
type Parser struct {
	banks  []string
	logger zerolog.Logger
}

// NewParser builds a parser. When banks is empty every bank present in a payload is used.
func NewParser(banks []string, logger zerolog.Logger) *Parser {
	return &Parser{
		banks:  append([]string(nil), banks...),
		logger: logger.With().Str("component", "rate_parser").Logger(),
	}
}

// Current parses a current-rates payload for currency.
func (p *Parser) Current(currency string, body []byte) (CurrencySnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return CurrencySnapshot{}, err
	}
	if fields == nil {
		return CurrencySnapshot{}, errors.New("payload is not an object")
	}

	rawTS, ok := fields[timestampField]
	if !ok {
		return CurrencySnapshot{}, errors.New("payload has no timestamp")
	}
	var timestamp string
	if err := json.Unmarshal(rawTS, &timestamp); err != nil {
		return CurrencySnapshot{}, fmt.Errorf("timestamp: %w", err)
	}

	snap := CurrencySnapshot{Currency: currency, Timestamp: timestamp}
	index := make(map[string]int)

	for _, bank := range p.bankKeys(fields) {
		raw, ok := fields[bank]
		if !ok {
			continue
		}
		var records []wireRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return CurrencySnapshot{}, fmt.Errorf("bank %s: %w", bank, err)
		}
		if len(records) == 0 {
			continue
		}

		quote := BankQuote{
			Bank:      bank,
			Currency:  currency,
			Buy:       p.parseRate(bank, "rate_buy", records[0].RateBuy),
			Sell:      p.parseRate(bank, "rate_sell", records[0].RateSell),
			Timestamp: timestamp,
		}
		if i, dup := index[bank]; dup {
			snap.Quotes[i] = quote
			continue
		}
		index[bank] = len(snap.Quotes)
		snap.Quotes = append(snap.Quotes, quote)
	}

	return snap, nil
}

// Historical parses a period payload. Instants with an unparseable timestamp
// or without any bank data are dropped; the result is sorted by instant.
func (p *Parser) Historical(currency string, periodDays int, body []byte) (HistoricalSeries, error) {
	var resp historicalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return HistoricalSeries{}, err
	}

	series := HistoricalSeries{
		Currency:   currency,
		PeriodDays: periodDays,
		Points:     make([]HistoricalPoint, 0, len(resp.Data)),
	}

	dropped := 0
	for _, item := range resp.Data {
		at, ok := ParseInstant(item.Timestamp)
		if !ok {
			dropped++
			continue
		}

		banks := make(map[string]BankRate)
		for _, bank := range p.historicalBankKeys(item.Rates) {
			records := item.Rates[bank]
			if len(records) == 0 {
				continue
			}
			banks[bank] = BankRate{
				Buy:  p.parseRate(bank, "rate_buy", records[0].RateBuy),
				Sell: p.parseRate(bank, "rate_sell", records[0].RateSell),
			}
		}
		if len(banks) == 0 {
			dropped++
			continue
		}

		series.Points = append(series.Points, HistoricalPoint{At: at, Banks: banks})
	}

	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].At.Before(series.Points[j].At)
	})

	if dropped > 0 {
		p.logger.Debug().Str("currency", currency).Int("period_days", periodDays).
			Int("dropped", dropped).Msg("historical instants dropped")
	}

	return series, nil
}

func (p *Parser) parseRate(bank, field, raw string) decimal.Decimal {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		metrics.ParseFallbacks.WithLabelValues(bank, field).Inc()
		p.logger.Warn().Str("bank", bank).Str("field", field).Str("raw", raw).
			Msg("unparseable rate replaced with zero")
		return decimal.Zero
	}
	return Round3(value)
}

// bankKeys returns the configured banks, or every array-valued field in lexical order.
func (p *Parser) bankKeys(fields map[string]json.RawMessage) []string {
	if len(p.banks) > 0 {
		return p.banks
	}
	keys := make([]string, 0, len(fields))
	for key, raw := range fields {
		if key == timestampField {
			continue
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *Parser) historicalBankKeys(rates map[string][]wireRecord) []string {
	if len(p.banks) > 0 {
		return p.banks
	}
	keys := make([]string, 0, len(rates))
	for key := range rates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
