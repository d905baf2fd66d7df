package alerting

import (
	"time"

	"github.com/shopspring/decimal"

	"currex/internal/rates"
)

// Alert sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var hundred = decimal.NewFromInt(100)

// ChangePct returns (current-previous)/previous in percent, zero when previous is zero.
func ChangePct(previous, current decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}

// Detect compares two best-rate selections of one currency and returns a
// notification per side whose rate moved by more than thresholdPct percent.
// A side missing from either selection never alerts.
func Detect(currency string, previous, current rates.Best, thresholdPct decimal.Decimal, at time.Time) []Notification {
	if !thresholdPct.IsPositive() {
		return nil
	}

	var out []Notification
	check := func(side string, prev, cur *rates.BankQuote, pick func(rates.BankQuote) decimal.Decimal) {
		if prev == nil || cur == nil {
			return
		}
		change := ChangePct(pick(*prev), pick(*cur))
		if change.Abs().LessThanOrEqual(thresholdPct) {
			return
		}
		out = append(out, Notification{
			ObservedAt:   at,
			Currency:     currency,
			Side:         side,
			PreviousBank: prev.Bank,
			Bank:         cur.Bank,
			Previous:     pick(*prev),
			Current:      pick(*cur),
			ChangePct:    change,
			ThresholdPct: thresholdPct,
		})
	}

	check(SideBuy, previous.Buy, current.Buy, func(q rates.BankQuote) decimal.Decimal { return q.Buy })
	check(SideSell, previous.Sell, current.Sell, func(q rates.BankQuote) decimal.Decimal { return q.Sell })
	return out
}
