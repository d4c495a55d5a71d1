package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// allowedParams is the pass-through whitelist for proxied pool queries.
// Anything else is silently dropped before the request leaves the service.
var allowedParams = map[string]bool{
	"subaccount":  true,
	"page_number": true,
	"page_size":   true,
	"start_date":  true,
	"end_date":    true,
	"mpn":         true,
	"tick_rate":   true,
}

// allowedProxyPaths lists the upstream resources admins may relay through
// the raw proxy endpoint.
var allowedProxyPaths = map[string]bool{
	"pool/workers":     true,
	"pool/hashrate":    true,
	"pool/revenue":     true,
	"pool/payouts":     true,
	"pool/subaccounts": true,
}

var ErrPathNotAllowed = errors.New("path_not_allowed")

type LuxorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

func NewLuxorClient(baseURL, apiKey string, log *zap.Logger) *LuxorClient {
	return &LuxorClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("pool.client"),
	}
}

type workersResponse struct {
	WorkerCount int64 `json:"worker_count"`
}

type hashrateResponse struct {
	TerahashPerSecond float64 `json:"terahash_per_second"`
	TickRate          string  `json:"tick_rate"`
}

type revenueResponse struct {
	RevenueSats int64  `json:"revenue_sats"`
	Currency    string `json:"currency"`
}

func (c *LuxorClient) WorkerCount(ctx context.Context, subaccount string) (int64, bool) {
	var out workersResponse
	if err := c.getJSON(ctx, "pool/workers", subaccount, nil, &out); err != nil {
		c.log.Warn("worker count unavailable", zap.String("subaccount", subaccount), zap.Error(err))
		return 0, false
	}
	return out.WorkerCount, true
}

func (c *LuxorClient) Hashrate(ctx context.Context, subaccount string) (HashrateSample, bool) {
	var out hashrateResponse
	if err := c.getJSON(ctx, "pool/hashrate", subaccount, nil, &out); err != nil {
		c.log.Warn("hashrate unavailable", zap.String("subaccount", subaccount), zap.Error(err))
		return HashrateSample{}, false
	}
	return HashrateSample{TerahashPerSecond: out.TerahashPerSecond, TickRate: out.TickRate}, true
}

func (c *LuxorClient) Revenue(ctx context.Context, subaccount string) (RevenueSample, bool) {
	var out revenueResponse
	if err := c.getJSON(ctx, "pool/revenue", subaccount, nil, &out); err != nil {
		c.log.Warn("revenue unavailable", zap.String("subaccount", subaccount), zap.Error(err))
		return RevenueSample{}, false
	}
	return RevenueSample{RevenueSats: out.RevenueSats, Currency: out.Currency}, true
}

func (c *LuxorClient) Proxy(ctx context.Context, path string, query url.Values) (ProxyResult, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if !allowedProxyPaths[path] {
		return ProxyResult{}, ErrPathNotAllowed
	}

	resp, err := c.do(ctx, path, filterParams(query))
	if err != nil {
		return ProxyResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ProxyResult{}, err
	}

	return ProxyResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *LuxorClient) getJSON(ctx context.Context, path, subaccount string, query url.Values, out any) error {
	if subaccount == "" {
		return errors.New("missing subaccount")
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("subaccount", subaccount)

	resp, err := c.do(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pool api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *LuxorClient) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	endpoint := c.baseURL + "/" + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	return c.client.Do(req)
}

func filterParams(query url.Values) url.Values {
	filtered := url.Values{}
	for key, values := range query {
		if !allowedParams[key] {
			continue
		}
		for _, v := range values {
			filtered.Add(key, v)
		}
	}
	return filtered
}
