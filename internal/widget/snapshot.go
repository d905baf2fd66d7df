package widget

import (
	"sort"
	"time"

	"currex/internal/rates"
)

// Snapshot is the payload handed from the refresh process to widget consumers.
type Snapshot struct {
	BestBuyRates  map[string]rates.BankQuote   `json:"bestBuyRates"`
	BestSellRates map[string]rates.BankQuote   `json:"bestSellRates"`
	AllRates      map[string][]rates.BankQuote `json:"allRates,omitempty"`
	LastUpdated   time.Time                    `json:"lastUpdated"`
}

// Build assembles a snapshot from one full refresh. Currencies without quotes
// contribute no best entries.
func Build(snapshots []rates.CurrencySnapshot, includeAll bool, now time.Time) Snapshot {
	out := Snapshot{
		BestBuyRates:  make(map[string]rates.BankQuote, len(snapshots)),
		BestSellRates: make(map[string]rates.BankQuote, len(snapshots)),
		LastUpdated:   now.UTC(),
	}
	if includeAll {
		out.AllRates = make(map[string][]rates.BankQuote, len(snapshots))
	}

	for _, snap := range snapshots {
		best := rates.SelectBest(snap.Quotes)
		if best.Buy != nil {
			out.BestBuyRates[snap.Currency] = *best.Buy
		}
		if best.Sell != nil {
			out.BestSellRates[snap.Currency] = *best.Sell
		}
		if includeAll {
			out.AllRates[snap.Currency] = append([]rates.BankQuote(nil), snap.Quotes...)
		}
	}
	return out
}

// Currencies lists every currency with a best entry or a quote list.
func (s Snapshot) Currencies() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(cur string) {
		if _, ok := seen[cur]; !ok {
			seen[cur] = struct{}{}
			out = append(out, cur)
		}
	}
	for cur := range s.BestBuyRates {
		add(cur)
	}
	for cur := range s.BestSellRates {
		add(cur)
	}
	for cur := range s.AllRates {
		add(cur)
	}
	sort.Strings(out)
	return out
}

// BestBuy returns the stored best buy quote of currency.
func (s Snapshot) BestBuy(currency string) (rates.BankQuote, bool) {
	q, ok := s.BestBuyRates[currency]
	return q, ok
}

// BestSell returns the stored best sell quote of currency.
func (s Snapshot) BestSell(currency string) (rates.BankQuote, bool) {
	q, ok := s.BestSellRates[currency]
	return q, ok
}

// Best returns both stored best quotes of currency; absent sides are nil.
func (s Snapshot) Best(currency string) rates.Best {
	var out rates.Best
	if q, ok := s.BestBuyRates[currency]; ok {
		out.Buy = &q
	}
	if q, ok := s.BestSellRates[currency]; ok {
		out.Sell = &q
	}
	return out
}

// RatesFor returns the full quote list of currency when the snapshot carries
// it, otherwise the best buy and best sell quotes (one entry if same bank).
func (s Snapshot) RatesFor(currency string) []rates.BankQuote {
	if all, ok := s.AllRates[currency]; ok {
		return append([]rates.BankQuote(nil), all...)
	}

	var out []rates.BankQuote
	if buy, ok := s.BestBuyRates[currency]; ok {
		out = append(out, buy)
	}
	if sell, ok := s.BestSellRates[currency]; ok {
		if len(out) == 0 || out[0].Bank != sell.Bank {
			out = append(out, sell)
		}
	}
	return out
}

// Equal compares snapshots by value.
func (s Snapshot) Equal(o Snapshot) bool {
	if !s.LastUpdated.Equal(o.LastUpdated) {
		return false
	}
	if !quoteMapEqual(s.BestBuyRates, o.BestBuyRates) || !quoteMapEqual(s.BestSellRates, o.BestSellRates) {
		return false
	}
	if len(s.AllRates) != len(o.AllRates) {
		return false
	}
	for cur, quotes := range s.AllRates {
		other, ok := o.AllRates[cur]
		if !ok || len(other) != len(quotes) {
			return false
		}
		for i := range quotes {
			if !quotes[i].Equal(other[i]) {
				return false
			}
		}
	}
	return true
}

func quoteMapEqual(a, b map[string]rates.BankQuote) bool {
	if len(a) != len(b) {
		return false
	}
	for k, q := range a {
		other, ok := b[k]
		if !ok || !q.Equal(other) {
			return false
		}
	}
	return true
}
