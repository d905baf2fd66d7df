package rates

// Best holds the best quotes of a snapshot.
//
// Buy is the bank paying the most for foreign currency (highest bank buy rate),
// i.e. the best place for a customer to sell. Sell is the cheapest bank to buy
// from (lowest bank sell rate). UI code depends on this naming; keep it.
type Best struct {
	Buy  *BankQuote `json:"bestBuy,omitempty"`
	Sell *BankQuote `json:"bestSell,omitempty"`
}

// SelectBest picks the highest buy and the lowest sell quote. Ties keep the
// first quote in input order. Empty input yields an empty Best.
func SelectBest(quotes []BankQuote) Best {
	if len(quotes) == 0 {
		return Best{}
	}

	buy, sell := 0, 0
	for i := 1; i < len(quotes); i++ {
		if quotes[i].Buy.GreaterThan(quotes[buy].Buy) {
			buy = i
		}
		if quotes[i].Sell.LessThan(quotes[sell].Sell) {
			sell = i
		}
	}

	bestBuy, bestSell := quotes[buy], quotes[sell]
	return Best{Buy: &bestBuy, Sell: &bestSell}
}
