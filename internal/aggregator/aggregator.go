// Package aggregator composes the dashboard snapshot: it runs the five
// market source fetchers concurrently, each wrapped in the tiered cache's
// coalescing GetOrCompute, and merges their results into a single
// snapshot.Snapshot, tolerating partial upstream failure. The fan-out always
// joins on every task; a failed sibling never cancels the others.
package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"odin-marketfeed/internal/cache"
	"odin-marketfeed/internal/fetch"
	"odin-marketfeed/internal/metrics"
	"odin-marketfeed/internal/snapshot"
)

const perTaskTimeout = 8 * time.Second

// cache keys, one per data class.
const (
	keyCryptoPrices  = "multi_crypto_prices_realtime"
	keyGlobalMetrics = "global_coingecko_1h"
	keySentiment     = "fng_alternative_5m"
	keyTechnical     = "btc_rsi_14_taapi_3h"
	keyStockIndices  = "us_indices_finnhub_5m"
)

// Aggregator composes a snapshot.Snapshot from the five market source
// classes on each call to FetchSnapshot.
type Aggregator struct {
	cache    *cache.Cache
	fetchers *fetch.Fetchers
	logger   *zap.Logger
	metrics  *metrics.Registry
}

// New builds an Aggregator wired to the shared cache and fetcher set.
func New(c *cache.Cache, fetchers *fetch.Fetchers, logger *zap.Logger, metricsRegistry *metrics.Registry) *Aggregator {
	return &Aggregator{cache: c, fetchers: fetchers, logger: logger, metrics: metricsRegistry}
}

type taskResult struct {
	class   string
	payload json.RawMessage
	err     error
}

// FetchSnapshot runs all five source fetchers concurrently and composes
// their results into a Snapshot. It always joins on every task (never
// cancels siblings on first failure); a task that fails, times out, or
// produces invalid data contributes the snapshot.New default for its fields
// and sets PartialFailure. When forceRealtimeRefresh is true, the
// RealTime-strategy class (crypto prices) bypasses the cache, calls
// upstream directly, and overwrites the cache entry; every other class
// still honors its TTL via GetOrCompute.
func (a *Aggregator) FetchSnapshot(ctx context.Context, forceRealtimeRefresh bool) (snapshot.Snapshot, error) {
	start := time.Now()
	snap := snapshot.New()

	tasks := map[string]struct {
		strategy cache.Strategy
		fetcher  fetch.Fetcher
	}{
		keyCryptoPrices:  {cache.RealTime, a.fetchers.MultiCryptoPricesRealtime},
		keyGlobalMetrics: {cache.MediumTerm, a.fetchers.GlobalCoingecko1h},
		keySentiment:     {cache.ShortTerm, a.fetchers.FngAlternative5m},
		keyTechnical:     {cache.LongTerm, a.fetchers.BtcRsi14Taapi3h},
		keyStockIndices:  {cache.ShortTerm, a.fetchers.UsIndicesFinnhub5m},
	}

	results := make(chan taskResult, len(tasks))
	var wg sync.WaitGroup

	for class, task := range tasks {
		wg.Add(1)
		go func(class string, strategy cache.Strategy, fetcher fetch.Fetcher) {
			defer wg.Done()
			taskCtx, cancel := context.WithTimeout(ctx, perTaskTimeout)
			defer cancel()

			var payload json.RawMessage
			var err error
			if forceRealtimeRefresh && strategy == cache.RealTime {
				payload, err = fetcher(taskCtx)
				if err == nil {
					a.cache.Set(taskCtx, class, payload, strategy)
				}
			} else {
				payload, err = a.cache.GetOrCompute(taskCtx, class, strategy, cache.Producer(fetcher))
			}
			results <- taskResult{class: class, payload: payload, err: err}
		}(class, task.strategy, task.fetcher)
	}

	wg.Wait()
	close(results)

	partialFailure := false
	for result := range results {
		if result.err != nil {
			partialFailure = true
			a.recordFailure(result.class, result.err)
			continue
		}
		a.recordSuccess(result.class)
		if err := applyResult(&snap, result.class, result.payload); err != nil {
			partialFailure = true
			a.recordFailure(result.class, err)
		}
	}

	snap.PartialFailure = partialFailure
	snap.FetchDurationMS = time.Since(start).Milliseconds()
	snap.Stamp(time.Now())

	if a.metrics != nil {
		a.metrics.TickDuration.Observe(time.Since(start).Seconds())
		if partialFailure {
			a.metrics.TickPartialFail.Inc()
		}
	}

	return snap, nil
}

func (a *Aggregator) recordSuccess(class string) {
	if a.metrics != nil {
		a.metrics.FetchSuccess.WithLabelValues(class).Inc()
	}
}

func (a *Aggregator) recordFailure(class string, err error) {
	if a.metrics != nil {
		a.metrics.FetchFailure.WithLabelValues(class).Inc()
	}
	if a.logger != nil {
		a.logger.Warn("fetch task failed, using defaults", zap.String("class", class), zap.Error(err))
	}
}

// applyResult decodes a fetcher's payload and merges it into snap. A decode
// error leaves the class at its defaults; the caller trips partial_failure.
func applyResult(snap *snapshot.Snapshot, class string, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}

	switch class {
	case keyCryptoPrices:
		var prices fetch.CryptoPrices
		if err := json.Unmarshal(payload, &prices); err != nil {
			return err
		}
		snap.BTCPriceUSD, snap.BTCChange24h = prices.BTC.PriceUSD, prices.BTC.Change24h
		snap.ETHPriceUSD, snap.ETHChange24h = prices.ETH.PriceUSD, prices.ETH.Change24h
		snap.SOLPriceUSD, snap.SOLChange24h = prices.SOL.PriceUSD, prices.SOL.Change24h
		snap.XRPPriceUSD, snap.XRPChange24h = prices.XRP.PriceUSD, prices.XRP.Change24h
		snap.ADAPriceUSD, snap.ADAChange24h = prices.ADA.PriceUSD, prices.ADA.Change24h
		snap.LINKPriceUSD, snap.LINKChange24h = prices.LINK.PriceUSD, prices.LINK.Change24h
		snap.BNBPriceUSD, snap.BNBChange24h = prices.BNB.PriceUSD, prices.BNB.Change24h

	case keyGlobalMetrics:
		var global fetch.GlobalMetrics
		if err := json.Unmarshal(payload, &global); err != nil {
			return err
		}
		snap.MarketCapUSD = global.MarketCapUSD
		snap.Volume24hUSD = global.Volume24hUSD
		snap.MarketCapChangePercentage24h = global.MarketCapChangePercentage24h
		snap.BTCMarketCapPercentage = global.BTCMarketCapPercentage
		snap.ETHMarketCapPercentage = global.ETHMarketCapPercentage

	case keySentiment:
		var sentiment fetch.Sentiment
		if err := json.Unmarshal(payload, &sentiment); err != nil {
			return err
		}
		snap.FNGValue = sentiment.Value

	case keyTechnical:
		var technical fetch.Technical
		if err := json.Unmarshal(payload, &technical); err != nil {
			return err
		}
		snap.BTCRSI14 = technical.BTCRSI14

	case keyStockIndices:
		var indices fetch.StockIndices
		if err := json.Unmarshal(payload, &indices); err != nil {
			return err
		}
		for symbol, quote := range indices.Indices {
			snap.USStockIndices[symbol] = snapshot.IndexQuote{
				Symbol:        quote.Symbol,
				Name:          quote.Name,
				Price:         quote.Price,
				Change:        quote.Change,
				ChangePercent: quote.ChangePercent,
				Status:        quote.Status,
			}
		}
	}

	return nil
}
