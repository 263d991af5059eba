package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odin-marketfeed/internal/config"
	"odin-marketfeed/internal/upstream"
)

func TestFngAlternative5mDefaultsOnUnparseableValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"not-a-number"}]}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.alternativeMe = srv.URL

	payload, err := f.FngAlternative5m(context.Background())
	require.NoError(t, err)

	var sentiment Sentiment
	require.NoError(t, json.Unmarshal(payload, &sentiment))
	assert.Equal(t, 50, sentiment.Value, "an unparseable value in a successful response must default to neutral")
}

func TestFngAlternative5mFailsOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.alternativeMe = srv.URL

	_, err := f.FngAlternative5m(context.Background())
	assert.Error(t, err, "a failed fetch must be an error, not a fabricated neutral value")
}

func TestFngAlternative5mParsesValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"73"}]}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.alternativeMe = srv.URL

	payload, err := f.FngAlternative5m(context.Background())
	require.NoError(t, err)

	var sentiment Sentiment
	require.NoError(t, json.Unmarshal(payload, &sentiment))
	assert.Equal(t, 73, sentiment.Value)
}

func TestBtcRsi14SkippedWithoutSecret(t *testing.T) {
	f := New(upstream.New(), config.UpstreamConfig{})
	_, err := f.BtcRsi14Taapi3h(context.Background())
	assert.Error(t, err, "rsi fetch must be skipped when TAAPI_SECRET is unset")
}

func TestBtcRsi14FetchesWhenSecretConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":61.5}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{TaapiSecret: "shh"})
	f.endpoints.taapi = srv.URL

	payload, err := f.BtcRsi14Taapi3h(context.Background())
	require.NoError(t, err)

	var technical Technical
	require.NoError(t, json.Unmarshal(payload, &technical))
	assert.Equal(t, 61.5, technical.BTCRSI14)
}

func TestBtcRsi14FailsOnMissingValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{TaapiSecret: "shh"})
	f.endpoints.taapi = srv.URL

	_, err := f.BtcRsi14Taapi3h(context.Background())
	assert.Error(t, err, "a response without a usable rsi value must not overwrite the default")
}

func TestUsIndicesFinnhub5mFailsWhenAnySymbolFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "SPY" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"c":123.45,"d":1.2,"dp":0.98}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{FinnhubAPIKey: "test-key"})
	f.endpoints.finnhub = srv.URL

	payload, err := f.UsIndicesFinnhub5m(context.Background())
	require.Error(t, err, "any failed symbol must fail the whole class")
	assert.Contains(t, err.Error(), "SPY")

	// The payload still carries the failed entry for diagnostic visibility.
	var indices StockIndices
	require.NoError(t, json.Unmarshal(payload, &indices))
	assert.Equal(t, "failed", indices.Indices["SPY"].Status)
	assert.Equal(t, "success", indices.Indices["DIA"].Status)
}

func TestUsIndicesFinnhub5mSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":123.45,"d":1.2,"dp":0.98}`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{FinnhubAPIKey: "test-key"})
	f.endpoints.finnhub = srv.URL

	payload, err := f.UsIndicesFinnhub5m(context.Background())
	require.NoError(t, err)

	var indices StockIndices
	require.NoError(t, json.Unmarshal(payload, &indices))
	for _, symbol := range []string{"DIA", "SPY", "QQQM"} {
		quote, ok := indices.Indices[symbol]
		require.True(t, ok)
		assert.Equal(t, "success", quote.Status)
		assert.Equal(t, 123.45, quote.Price)
	}
}

func TestMultiCryptoPricesRealtimeParsesAllSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"65000.12","priceChangePercent":"1.5"},
			{"symbol":"ETHUSDT","lastPrice":"3400.50","priceChangePercent":"2.1"},
			{"symbol":"SOLUSDT","lastPrice":"150.25","priceChangePercent":"-0.8"},
			{"symbol":"XRPUSDT","lastPrice":"0.55","priceChangePercent":"0.3"},
			{"symbol":"ADAUSDT","lastPrice":"0.40","priceChangePercent":"-1.1"},
			{"symbol":"LINKUSDT","lastPrice":"14.75","priceChangePercent":"3.2"},
			{"symbol":"BNBUSDT","lastPrice":"580.00","priceChangePercent":"0.9"}
		]`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.binance = srv.URL

	payload, err := f.MultiCryptoPricesRealtime(context.Background())
	require.NoError(t, err)

	var prices CryptoPrices
	require.NoError(t, json.Unmarshal(payload, &prices))
	assert.Equal(t, 65000.12, prices.BTC.PriceUSD)
	assert.Equal(t, 580.00, prices.BNB.PriceUSD)
}

func TestMultiCryptoPricesRealtimeFailsOnMissingSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","lastPrice":"65000.12","priceChangePercent":"1.5"}]`))
	}))
	defer srv.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.binance = srv.URL

	_, err := f.MultiCryptoPricesRealtime(context.Background())
	assert.Error(t, err, "a response missing any of the 7 symbols must fail validation")
}

func TestGlobalCoingecko1hFallsBackToCMC(t *testing.T) {
	coinGecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"total_market_cap":{"usd":0}}}`))
	}))
	defer coinGecko.Close()

	cmc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cmc-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		w.Write([]byte(`{"data":{"btc_dominance":51.2,"eth_dominance":17.8,"quote":{"USD":{"total_market_cap":2.5e12,"total_volume_24h":9.8e10,"total_market_cap_yesterday_percentage_change":1.1}}}}`))
	}))
	defer cmc.Close()

	f := New(upstream.New(), config.UpstreamConfig{CMCAPIKey: "cmc-key"})
	f.endpoints.coinGecko = coinGecko.URL
	f.endpoints.coinMarketCap = cmc.URL

	payload, err := f.GlobalCoingecko1h(context.Background())
	require.NoError(t, err)

	var global GlobalMetrics
	require.NoError(t, json.Unmarshal(payload, &global))
	assert.Equal(t, 51.2, global.BTCMarketCapPercentage)
}

func TestGlobalCoingecko1hSkipsFallbackWithoutCMCKey(t *testing.T) {
	coinGecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"total_market_cap":{"usd":0}}}`))
	}))
	defer coinGecko.Close()

	f := New(upstream.New(), config.UpstreamConfig{})
	f.endpoints.coinGecko = coinGecko.URL

	_, err := f.GlobalCoingecko1h(context.Background())
	assert.Error(t, err, "fallback must be skipped entirely when CMC_API_KEY is absent")
}
