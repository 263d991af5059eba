package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"odin-marketfeed/internal/config"
	"odin-marketfeed/internal/snapshot"
	"odin-marketfeed/internal/upstream"
)

// Fetcher produces one data class's JSON payload. It is the shape every
// function in this package conforms to, and what the aggregator wraps with
// cache.GetOrCompute.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// endpoints holds the base URL for each upstream provider. Defaulted to the
// real services in New; tests override individual fields to point at an
// httptest server instead.
type endpoints struct {
	binance       string
	coinGecko     string
	coinMarketCap string
	alternativeMe string
	taapi         string
	finnhub       string
}

func defaultEndpoints() endpoints {
	return endpoints{
		binance:       "https://api.binance.com",
		coinGecko:     "https://api.coingecko.com",
		coinMarketCap: "https://pro-api.coinmarketcap.com",
		alternativeMe: "https://api.alternative.me",
		taapi:         "https://api.taapi.io",
		finnhub:       "https://finnhub.io",
	}
}

// Fetchers bundles the upstream client and credentials every fetcher needs.
type Fetchers struct {
	client    *upstream.Client
	cfg       config.UpstreamConfig
	endpoints endpoints
}

// New builds the fetcher set sharing a single upstream.Client.
func New(client *upstream.Client, cfg config.UpstreamConfig) *Fetchers {
	return &Fetchers{client: client, cfg: cfg, endpoints: defaultEndpoints()}
}

// MultiCryptoPricesRealtime fetches spot price and 24h change for every
// symbol in snapshot.Symbols from a single Binance /api/v3/ticker/24hr call,
// validating that every symbol came back with a positive price.
func (f *Fetchers) MultiCryptoPricesRealtime(ctx context.Context) (json.RawMessage, error) {
	pairs := make([]string, len(snapshot.Symbols))
	for i, symbol := range snapshot.Symbols {
		pairs[i] = `"` + symbol + `USDT"`
	}
	url := f.endpoints.binance + "/api/v3/ticker/24hr?symbols=[" + strings.Join(pairs, ",") + "]"

	var tickers []binanceTicker
	if err := f.client.GetJSON(ctx, url, nil, &tickers); err != nil {
		return nil, fmt.Errorf("fetch binance tickers: %w", err)
	}

	byPair := make(map[string]binanceTicker, len(tickers))
	for _, t := range tickers {
		byPair[t.Symbol] = t
	}

	quotes := make(map[string]CryptoQuote, len(snapshot.Symbols))
	for _, symbol := range snapshot.Symbols {
		t, ok := byPair[symbol+"USDT"]
		if !ok {
			return nil, fmt.Errorf("missing symbol %s in binance response", symbol)
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid price for %s: %q", symbol, t.LastPrice)
		}
		changePct, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		quotes[symbol] = CryptoQuote{PriceUSD: price, Change24h: changePct}
	}

	return json.Marshal(CryptoPrices{
		BTC:  quotes["BTC"],
		ETH:  quotes["ETH"],
		SOL:  quotes["SOL"],
		XRP:  quotes["XRP"],
		ADA:  quotes["ADA"],
		LINK: quotes["LINK"],
		BNB:  quotes["BNB"],
	})
}

// GlobalCoingecko1h fetches aggregate market metrics from CoinGecko's
// /global, falling back to CoinMarketCap's global-metrics endpoint when the
// CoinGecko call fails or its response fails validation, and CMC_API_KEY is
// configured.
func (f *Fetchers) GlobalCoingecko1h(ctx context.Context) (json.RawMessage, error) {
	metrics, err := f.fetchCoinGeckoGlobal(ctx)
	if err == nil {
		return json.Marshal(metrics)
	}

	if f.cfg.CMCAPIKey == "" {
		return nil, fmt.Errorf("coingecko global failed and no cmc fallback configured: %w", err)
	}

	metrics, fallbackErr := f.fetchCMCGlobal(ctx)
	if fallbackErr != nil {
		return nil, fmt.Errorf("coingecko global failed (%v), cmc fallback failed: %w", err, fallbackErr)
	}
	return json.Marshal(metrics)
}

func (f *Fetchers) fetchCoinGeckoGlobal(ctx context.Context) (GlobalMetrics, error) {
	var resp coinGeckoGlobalResponse
	if err := f.client.GetJSON(ctx, f.endpoints.coinGecko+"/api/v3/global", nil, &resp); err != nil {
		return GlobalMetrics{}, err
	}

	marketCap := resp.Data.TotalMarketCap["usd"]
	volume := resp.Data.TotalVolume["usd"]
	btcDominance := resp.Data.MarketCapPercentage["btc"]
	if marketCap <= 0 || volume <= 0 || btcDominance <= 0 {
		return GlobalMetrics{}, fmt.Errorf("coingecko global validation failed: market_cap=%v volume=%v btc_dominance=%v", marketCap, volume, btcDominance)
	}

	return GlobalMetrics{
		MarketCapUSD:                 marketCap,
		Volume24hUSD:                 volume,
		MarketCapChangePercentage24h: resp.Data.MarketCapChangePct24hUSD,
		BTCMarketCapPercentage:       btcDominance,
		ETHMarketCapPercentage:       resp.Data.MarketCapPercentage["eth"],
	}, nil
}

func (f *Fetchers) fetchCMCGlobal(ctx context.Context) (GlobalMetrics, error) {
	var resp cmcGlobalResponse
	headers := map[string]string{"X-CMC_PRO_API_KEY": f.cfg.CMCAPIKey}
	if err := f.client.GetJSON(ctx, f.endpoints.coinMarketCap+"/v1/global-metrics/quotes/latest", headers, &resp); err != nil {
		return GlobalMetrics{}, err
	}
	return GlobalMetrics{
		MarketCapUSD:                 resp.Data.Quote.USD.TotalMarketCap,
		Volume24hUSD:                 resp.Data.Quote.USD.TotalVolume24h,
		MarketCapChangePercentage24h: resp.Data.Quote.USD.TotalMarketCapYesterdayPct,
		BTCMarketCapPercentage:       resp.Data.BTCDominance,
		ETHMarketCapPercentage:       resp.Data.ETHDominance,
	}, nil
}

// FngAlternative5m fetches the Fear & Greed index. There is no fallback
// source for this class: a failed HTTP call is an error, so an outage trips
// partial_failure instead of caching a fabricated value. Only an unparseable
// value inside a successful response defaults to neutral (50).
func (f *Fetchers) FngAlternative5m(ctx context.Context) (json.RawMessage, error) {
	var resp alternativeFNGResponse
	if err := f.client.GetJSON(ctx, f.endpoints.alternativeMe+"/fng/?limit=1", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch fear & greed index: %w", err)
	}

	value := 50
	if len(resp.Data) > 0 {
		if parsed, err := strconv.Atoi(resp.Data[0].Value); err == nil {
			value = parsed
		}
	}
	return json.Marshal(Sentiment{Value: value})
}

// BtcRsi14Taapi3h fetches BTC's daily RSI(14) from taapi.io. It is skipped
// (returns an error immediately) when TAAPI_SECRET is unset, so the
// aggregator falls back to the snapshot default of 50.0.
func (f *Fetchers) BtcRsi14Taapi3h(ctx context.Context) (json.RawMessage, error) {
	if f.cfg.TaapiSecret == "" {
		return nil, fmt.Errorf("btc rsi fetch skipped: TAAPI_SECRET not configured")
	}

	url := fmt.Sprintf(
		"%s/rsi?secret=%s&exchange=binance&symbol=BTC/USDT&interval=1d",
		f.endpoints.taapi, f.cfg.TaapiSecret,
	)
	var resp taapiRSIResponse
	if err := f.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch taapi rsi: %w", err)
	}
	if resp.Value <= 0 {
		return nil, fmt.Errorf("taapi rsi response missing value")
	}
	return json.Marshal(Technical{BTCRSI14: resp.Value})
}

// UsIndicesFinnhub5m fetches DIA/SPY/QQQM quotes concurrently from Finnhub.
// Any symbol failing fails the whole class: the returned payload still
// carries status:"failed" zero-value entries for the symbols that broke (so
// the failure is visible in logs and to direct callers), but the non-nil
// error keeps the result out of the cache and trips partial_failure.
// Skipped entirely when FINNHUB_API_KEY is unset.
func (f *Fetchers) UsIndicesFinnhub5m(ctx context.Context) (json.RawMessage, error) {
	if f.cfg.FinnhubAPIKey == "" {
		return nil, fmt.Errorf("stock indices fetch skipped: FINNHUB_API_KEY not configured")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string
	result := StockIndices{Indices: make(map[string]IndexQuote, len(snapshot.StockTickers))}

	for _, symbol := range snapshot.StockTickers {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			quote, err := f.fetchFinnhubQuote(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Indices[symbol] = IndexQuote{Symbol: symbol, Name: indexNames[symbol], Status: "failed"}
				failed = append(failed, symbol)
				return
			}
			result.Indices[symbol] = quote
		}(symbol)
	}
	wg.Wait()

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal stock indices: %w", err)
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return payload, fmt.Errorf("finnhub quotes failed for %s", strings.Join(failed, ", "))
	}
	return payload, nil
}

func (f *Fetchers) fetchFinnhubQuote(ctx context.Context, symbol string) (IndexQuote, error) {
	url := fmt.Sprintf("%s/api/v1/quote?symbol=%s&token=%s", f.endpoints.finnhub, symbol, f.cfg.FinnhubAPIKey)
	var resp finnhubQuoteResponse
	if err := f.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return IndexQuote{}, err
	}
	if resp.CurrentPrice <= 0 {
		return IndexQuote{}, fmt.Errorf("invalid finnhub price for %s", symbol)
	}
	return IndexQuote{
		Symbol:        symbol,
		Name:          indexNames[symbol],
		Price:         resp.CurrentPrice,
		Change:        resp.Change,
		ChangePercent: resp.ChangePercent,
		Status:        "success",
	}, nil
}
