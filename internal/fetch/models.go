// Package fetch implements the market source fetchers: one function per
// data class, each producing a small, independently cacheable JSON payload
// that the aggregator later merges into a snapshot.Snapshot.
package fetch

// CryptoPrices is the multi_crypto_prices_realtime payload: one entry per
// symbol in snapshot.Symbols.
type CryptoPrices struct {
	BTC  CryptoQuote `json:"btc"`
	ETH  CryptoQuote `json:"eth"`
	SOL  CryptoQuote `json:"sol"`
	XRP  CryptoQuote `json:"xrp"`
	ADA  CryptoQuote `json:"ada"`
	LINK CryptoQuote `json:"link"`
	BNB  CryptoQuote `json:"bnb"`
}

// CryptoQuote is a single symbol's price and 24h change.
type CryptoQuote struct {
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
}

// binanceTicker mirrors one element of Binance's
// GET /api/v3/ticker/24hr response.
type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// GlobalMetrics is the global_coingecko_1h payload.
type GlobalMetrics struct {
	MarketCapUSD                 float64 `json:"market_cap_usd"`
	Volume24hUSD                 float64 `json:"volume_24h_usd"`
	MarketCapChangePercentage24h float64 `json:"market_cap_change_percentage_24h_usd"`
	BTCMarketCapPercentage       float64 `json:"btc_market_cap_percentage"`
	ETHMarketCapPercentage       float64 `json:"eth_market_cap_percentage"`
}

// coinGeckoGlobalResponse mirrors CoinGecko's GET /global response envelope.
type coinGeckoGlobalResponse struct {
	Data struct {
		TotalMarketCap           map[string]float64 `json:"total_market_cap"`
		TotalVolume              map[string]float64 `json:"total_volume"`
		MarketCapPercentage      map[string]float64 `json:"market_cap_percentage"`
		MarketCapChangePct24hUSD float64            `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

// cmcGlobalResponse mirrors CoinMarketCap's
// GET /v1/global-metrics/quotes/latest response envelope (fallback source).
type cmcGlobalResponse struct {
	Data struct {
		BTCDominance float64 `json:"btc_dominance"`
		ETHDominance float64 `json:"eth_dominance"`
		Quote        struct {
			USD struct {
				TotalMarketCap             float64 `json:"total_market_cap"`
				TotalVolume24h             float64 `json:"total_volume_24h"`
				TotalMarketCapYesterdayPct float64 `json:"total_market_cap_yesterday_percentage_change"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// Sentiment is the fng_alternative_5m payload.
type Sentiment struct {
	Value int `json:"value"`
}

// alternativeFNGResponse mirrors alternative.me's GET /fng/ response.
type alternativeFNGResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Technical is the btc_rsi_14_taapi_3h payload.
type Technical struct {
	BTCRSI14 float64 `json:"btc_rsi_14"`
}

// taapiRSIResponse mirrors taapi.io's GET /rsi response.
type taapiRSIResponse struct {
	Value float64 `json:"value"`
}

// StockIndices is the us_indices_finnhub_5m payload, keyed by ticker.
type StockIndices struct {
	Indices map[string]IndexQuote `json:"indices"`
}

// IndexQuote mirrors snapshot.IndexQuote's shape for the fetch layer's own
// JSON payload, decoupling the cached wire format from the snapshot package.
type IndexQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Status        string  `json:"status"`
}

// finnhubQuoteResponse mirrors Finnhub's GET /quote response.
type finnhubQuoteResponse struct {
	CurrentPrice  float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
}

var indexNames = map[string]string{
	"DIA":  "SPDR Dow Jones Industrial Average ETF",
	"SPY":  "SPDR S&P 500 ETF Trust",
	"QQQM": "Invesco NASDAQ 100 ETF",
}
