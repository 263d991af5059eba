// Package snapshot defines the flat dashboard record that the aggregator
// composes, the stream publisher appends, and the broadcast bus fans out.
package snapshot

import "time"

// IndexQuote is a single stock-index entry inside Snapshot.USStockIndices.
type IndexQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Status        string  `json:"status"`
}

// Symbols is the fixed crypto ticker set every snapshot reports on.
var Symbols = [...]string{"BTC", "ETH", "SOL", "XRP", "ADA", "LINK", "BNB"}

// StockTickers is the fixed set of stock-index proxies fetched from Finnhub.
var StockTickers = [...]string{"DIA", "SPY", "QQQM"}

// Snapshot is the unit of broadcast and stream append. Every field is always
// present; a failed or missing upstream contributes its zero value rather
// than an absent field.
type Snapshot struct {
	BTCPriceUSD   float64 `json:"btc_price_usd"`
	BTCChange24h  float64 `json:"btc_change_24h"`
	ETHPriceUSD   float64 `json:"eth_price_usd"`
	ETHChange24h  float64 `json:"eth_change_24h"`
	SOLPriceUSD   float64 `json:"sol_price_usd"`
	SOLChange24h  float64 `json:"sol_change_24h"`
	XRPPriceUSD   float64 `json:"xrp_price_usd"`
	XRPChange24h  float64 `json:"xrp_change_24h"`
	ADAPriceUSD   float64 `json:"ada_price_usd"`
	ADAChange24h  float64 `json:"ada_change_24h"`
	LINKPriceUSD  float64 `json:"link_price_usd"`
	LINKChange24h float64 `json:"link_change_24h"`
	BNBPriceUSD   float64 `json:"bnb_price_usd"`
	BNBChange24h  float64 `json:"bnb_change_24h"`

	MarketCapUSD                 float64 `json:"market_cap_usd"`
	Volume24hUSD                 float64 `json:"volume_24h_usd"`
	MarketCapChangePercentage24h float64 `json:"market_cap_change_percentage_24h_usd"`
	BTCMarketCapPercentage       float64 `json:"btc_market_cap_percentage"`
	ETHMarketCapPercentage       float64 `json:"eth_market_cap_percentage"`

	FNGValue int     `json:"fng_value"`
	BTCRSI14 float64 `json:"btc_rsi_14"`

	USStockIndices map[string]IndexQuote `json:"us_stock_indices"`

	FetchDurationMS int64  `json:"fetch_duration_ms"`
	PartialFailure  bool   `json:"partial_failure"`
	LastUpdated     string `json:"last_updated"`
	Timestamp       string `json:"timestamp"`
}

// New returns a Snapshot with every field defaulted (zero prices, FNG 50,
// RSI 50.0, empty-but-non-nil index map) so partial results are always
// well-formed.
func New() Snapshot {
	return Snapshot{
		FNGValue:       50,
		BTCRSI14:       50.0,
		USStockIndices: make(map[string]IndexQuote),
	}
}

// Stamp sets LastUpdated and Timestamp to the current UTC instant in
// RFC3339, satisfying the invariant that Timestamp >= every component's
// LastUpdated (there is a single fetch instant per tick in this design).
func (s *Snapshot) Stamp(now time.Time) {
	formatted := now.UTC().Format(time.RFC3339)
	s.LastUpdated = formatted
	s.Timestamp = formatted
}

// Message is the broadcast/stream wire envelope.
type Message struct {
	Type      string   `json:"type"`
	Data      Snapshot `json:"data"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

// NewMessage wraps a snapshot in the dashboard_update wire envelope.
func NewMessage(s Snapshot, now time.Time) Message {
	return Message{
		Type:      "dashboard_update",
		Data:      s,
		Timestamp: now.UTC().Format(time.RFC3339),
		Source:    "external_apis",
	}
}
