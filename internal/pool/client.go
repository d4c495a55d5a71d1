// Package pool reads live mining stats from the hosting provider's pool
// account. Everything here is advisory: callers degrade missing data to
// zero values instead of failing their request.
package pool

import (
	"context"
	"net/url"
)

// HashrateSample is one observed hashrate reading for a subaccount.
type HashrateSample struct {
	TerahashPerSecond float64 `json:"terahash_per_second"`
	TickRate          string  `json:"tick_rate,omitempty"`
}

// RevenueSample is the mining revenue credited to a subaccount.
type RevenueSample struct {
	RevenueSats int64  `json:"revenue_sats"`
	Currency    string `json:"currency,omitempty"`
}

// ProxyResult is the raw upstream response relayed to admin callers.
type ProxyResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client queries the pool API. The boolean returns report whether live data
// was available; false means the caller should fall back to zero values.
type Client interface {
	WorkerCount(ctx context.Context, subaccount string) (int64, bool)
	Hashrate(ctx context.Context, subaccount string) (HashrateSample, bool)
	Revenue(ctx context.Context, subaccount string) (RevenueSample, bool)
	Proxy(ctx context.Context, path string, query url.Values) (ProxyResult, error)
}
