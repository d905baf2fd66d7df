package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupportedPeriods lists the history windows (in days) the provider serves.
var SupportedPeriods = []int{1, 3, 7, 30, 90, 180, 360}

// BankQuote is one bank's buy/sell quote for one currency at one instant.
// Buy is what the bank pays for a unit of foreign currency; Sell is what it charges.
type BankQuote struct {
	Bank      string          `json:"bankName"`
	Currency  string          `json:"currencyType"`
	Buy       decimal.Decimal `json:"buyRate"`
	Sell      decimal.Decimal `json:"sellRate"`
	Timestamp string          `json:"timestamp"`
}

// Spread returns Sell - Buy. Malformed data may yield a negative spread.
func (q BankQuote) Spread() decimal.Decimal {
	return q.Sell.Sub(q.Buy)
}

// Equal compares quotes by value.
func (q BankQuote) Equal(o BankQuote) bool {
	return q.Bank == o.Bank &&
		q.Currency == o.Currency &&
		q.Buy.Equal(o.Buy) &&
		q.Sell.Equal(o.Sell) &&
		q.Timestamp == o.Timestamp
}

// CurrencySnapshot is the ordered set of quotes for one currency from one fetch.
type CurrencySnapshot struct {
	Currency  string      `json:"currency"`
	Timestamp string      `json:"timestamp"`
	Quotes    []BankQuote `json:"quotes"`
}

// Quote returns the quote of the named bank.
func (s CurrencySnapshot) Quote(bank string) (BankQuote, bool) {
	for _, q := range s.Quotes {
		if q.Bank == bank {
			return q, true
		}
	}
	return BankQuote{}, false
}

// Clone returns a copy that shares no slices with s.
func (s CurrencySnapshot) Clone() CurrencySnapshot {
	out := s
	if s.Quotes != nil {
		out.Quotes = append([]BankQuote(nil), s.Quotes...)
	}
	return out
}

// ServerTime parses the snapshot's server timestamp.
func (s CurrencySnapshot) ServerTime() (time.Time, bool) {
	return ParseInstant(s.Timestamp)
}

// BankRate is a buy/sell pair inside a historical point.
type BankRate struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// HistoricalPoint holds the per-bank rates observed at one instant.
type HistoricalPoint struct {
	At    time.Time           `json:"timestamp"`
	Banks map[string]BankRate `json:"banks"`
}

// Clone returns a copy with its own bank map.
func (p HistoricalPoint) Clone() HistoricalPoint {
	out := HistoricalPoint{At: p.At}
	if p.Banks != nil {
		out.Banks = make(map[string]BankRate, len(p.Banks))
		for bank, r := range p.Banks {
			out.Banks[bank] = r
		}
	}
	return out
}

// BuyRate returns the bank's buy rate, zero when the bank has no entry.
func (p HistoricalPoint) BuyRate(bank string) decimal.Decimal {
	return p.Banks[bank].Buy
}

// SellRate returns the bank's sell rate, zero when the bank has no entry.
func (p HistoricalPoint) SellRate(bank string) decimal.Decimal {
	return p.Banks[bank].Sell
}

// HistoricalSeries is a time-ordered sequence of points for one currency.
type HistoricalSeries struct {
	Currency   string            `json:"currency"`
	PeriodDays int               `json:"period_days"`
	Points     []HistoricalPoint `json:"points"`
}

// Clone returns a deep copy of the series.
func (s HistoricalSeries) Clone() HistoricalSeries {
	out := s
	if s.Points != nil {
		out.Points = make([]HistoricalPoint, len(s.Points))
		for i, p := range s.Points {
			out.Points[i] = p.Clone()
		}
	}
	return out
}
