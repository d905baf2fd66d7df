package rates

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	domainPadLow  = decimal.RequireFromString("0.99")
	domainPadHigh = decimal.RequireFromString("1.01")
	defaultLow    = decimal.Zero
	defaultHigh   = decimal.NewFromInt(50)
)

// AvailableBanks lists every bank with at least one entry in the series, sorted.
func (s HistoricalSeries) AvailableBanks() []string {
	seen := make(map[string]struct{})
	for _, point := range s.Points {
		for bank := range point.Banks {
			seen[bank] = struct{}{}
		}
	}
	banks := make([]string, 0, len(seen))
	for bank := range seen {
		banks = append(banks, bank)
	}
	sort.Strings(banks)
	return banks
}

// VisibleBanks intersects the requested banks with the available ones. When the
// intersection is empty every available bank is returned.
func (s HistoricalSeries) VisibleBanks(requested []string) []string {
	available := s.AvailableBanks()
	if len(requested) == 0 {
		return available
	}
	want := make(map[string]struct{}, len(requested))
	for _, bank := range requested {
		want[bank] = struct{}{}
	}
	visible := make([]string, 0, len(available))
	for _, bank := range available {
		if _, ok := want[bank]; ok {
			visible = append(visible, bank)
		}
	}
	if len(visible) == 0 {
		return available
	}
	return visible
}

// DateRange returns the first and last instants of the series.
func (s HistoricalSeries) DateRange() (from, to time.Time, ok bool) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Points[0].At, s.Points[len(s.Points)-1].At, true
}

// YDomain returns a padded value range over the positive rates of the given
// banks, or 0..50 when there is nothing to plot.
func (s HistoricalSeries) YDomain(banks []string) (low, high decimal.Decimal) {
	var values []decimal.Decimal
	for _, point := range s.Points {
		for _, bank := range banks {
			rate, ok := point.Banks[bank]
			if !ok {
				continue
			}
			if rate.Buy.IsPositive() {
				values = append(values, rate.Buy)
			}
			if rate.Sell.IsPositive() {
				values = append(values, rate.Sell)
			}
		}
	}
	if len(values) == 0 {
		return defaultLow, defaultHigh
	}
	return decimal.Min(values[0], values[1:]...).Mul(domainPadLow),
		decimal.Max(values[0], values[1:]...).Mul(domainPadHigh)
}

// YDomain returns lowest buy * 0.99 .. highest sell * 1.01, or 0..50 for an empty snapshot.
func (s CurrencySnapshot) YDomain() (low, high decimal.Decimal) {
	if len(s.Quotes) == 0 {
		return defaultLow, defaultHigh
	}
	low, high = s.Quotes[0].Buy, s.Quotes[0].Sell
	for _, q := range s.Quotes[1:] {
		if q.Buy.LessThan(low) {
			low = q.Buy
		}
		if q.Sell.GreaterThan(high) {
			high = q.Sell
		}
	}
	return low.Mul(domainPadLow), high.Mul(domainPadHigh)
}
