// Package esigateway implements C1, the external game API client: batched
// name resolution and single-entity fetches against EVE's ESI, behind the
// NameResolver and EntityFetcher capability interfaces. Grounded on the
// teacher's pkg/evegateway (client.go, retry.go, redis_cache.go,
// interfaces.go): same two-tier cache shape, same exponential-backoff
// retry client, same error-budget tracking under a mutex, narrowed from a
// many-capability ESI client down to the two capabilities this spec names.
package esigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"skirmish/pkg/config"
	"skirmish/pkg/database"
)

const (
	defaultBaseURL = "https://esi.evetech.net/latest"
	defaultTimeout = 10 * time.Second
	nameChunkSize  = 1000
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client implements NameResolver and EntityFetcher.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cache      *twoTierCache
	budget     *ErrorBudget
}

// NewClient builds a Client. redisClient may be nil, in which case only
// the in-process cache tier is used.
func NewClient(cfg Config, redisClient *database.Redis) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout, Transport: tracedTransport()},
		cache:      newTwoTierCache(redisClient),
		budget:     NewErrorBudget(),
	}
}

// tracedTransport wraps the default transport with otelhttp instrumentation
// when telemetry is enabled, matching the teacher's ENABLE_TELEMETRY gate
// (pkg/handlers/tracing.go). A plain RoundTripper otherwise, same as the
// teacher falls back to a no-op middleware.
func tracedTransport() http.RoundTripper {
	if !config.GetBoolEnv("ENABLE_TELEMETRY", true) {
		return http.DefaultTransport
	}
	return otelhttp.NewTransport(http.DefaultTransport)
}

// ResolveNames resolves ids to names and categories. Inputs are
// deduplicated and filtered to positive IDs, then split into upstream
// calls of at most 1000 IDs each; already-cached IDs never reach an
// upstream call.
func (c *Client) ResolveNames(ctx context.Context, ids []int64) (map[int64]NameEntry, error) {
	unique := dedupPositive(ids)
	if len(unique) == 0 {
		return map[int64]NameEntry{}, nil
	}

	result := make(map[int64]NameEntry, len(unique))
	var misses []int64

	for _, id := range unique {
		if raw, ok := c.cache.get(ctx, nameCacheKey(id)); ok {
			var entry NameEntry
			if err := json.Unmarshal(raw, &entry); err == nil {
				result[id] = entry
				continue
			}
		}
		misses = append(misses, id)
	}

	for start := 0; start < len(misses); start += nameChunkSize {
		end := start + nameChunkSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		resolved, err := c.resolveNamesChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for id, entry := range resolved {
			result[id] = entry
			payload, _ := json.Marshal(entry)
			c.cache.set(ctx, nameCacheKey(id), payload)
		}
	}

	return result, nil
}

func (c *Client) resolveNamesChunk(ctx context.Context, ids []int64) (map[int64]NameEntry, error) {
	if c.budget.Suspended() {
		return nil, &BudgetExhausted{}
	}

	body, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("esigateway: failed to encode id batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/universe/names/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		return nil, err
	}

	var entries []NameEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("esigateway: failed to decode names response: %w", err)
	}

	out := make(map[int64]NameEntry, len(entries))
	for _, e := range entries {
		out[e.ID] = e
	}
	return out, nil
}

// Character fetches a single character by ID.
func (c *Client) Character(ctx context.Context, id int64) (Character, error) {
	var out Character
	err := c.fetchEntity(ctx, fmt.Sprintf("character:%d", id), fmt.Sprintf("/characters/%d/", id), &out)
	out.ID = id
	return out, err
}

// Corporation fetches a single corporation by ID.
func (c *Client) Corporation(ctx context.Context, id int64) (Corporation, error) {
	var out Corporation
	err := c.fetchEntity(ctx, fmt.Sprintf("corporation:%d", id), fmt.Sprintf("/corporations/%d/", id), &out)
	out.ID = id
	return out, err
}

// Alliance fetches a single alliance by ID.
func (c *Client) Alliance(ctx context.Context, id int64) (Alliance, error) {
	var out Alliance
	err := c.fetchEntity(ctx, fmt.Sprintf("alliance:%d", id), fmt.Sprintf("/alliances/%d/", id), &out)
	out.ID = id
	return out, err
}

// System fetches a single solar system by ID.
func (c *Client) System(ctx context.Context, id int64) (SolarSystem, error) {
	var out SolarSystem
	err := c.fetchEntity(ctx, fmt.Sprintf("system:%d", id), fmt.Sprintf("/universe/systems/%d/", id), &out)
	out.ID = id
	return out, err
}

func (c *Client) fetchEntity(ctx context.Context, cacheKey, path string, dest interface{}) error {
	if raw, ok := c.cache.get(ctx, cacheKey); ok {
		return json.Unmarshal(raw, dest)
	}

	if c.budget.Suspended() {
		return &BudgetExhausted{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		return err
	}

	raw, err := decodeRaw(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("esigateway: failed to decode entity response: %w", err)
	}

	c.cache.set(ctx, cacheKey, raw)
	return nil
}

func decodeRaw(resp *http.Response) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("esigateway: failed to read response body: %w", err)
	}
	return raw, nil
}

func statusToError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &UpstreamUnauthorized{}
	case status == http.StatusNotFound:
		return &UpstreamNotFound{}
	case status < 200 || status >= 300:
		return &UpstreamHttpError{Status: status}
	default:
		return nil
	}
}

func nameCacheKey(id int64) string {
	return "name:" + strconv.FormatInt(id, 10)
}

func dedupPositive(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
