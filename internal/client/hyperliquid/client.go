// Package hyperliquid is a minimal client for the Hyperliquid perpetuals
// API: the public /info endpoint and signed /exchange actions.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	metaTTL = 10 * time.Minute
)

var ErrUnknownAsset = errors.New("unknown asset")

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hyperliquid API error (%d): %s", e.Status, e.Body)
}

// AssetInfo locates a perp in the exchange universe.
type AssetInfo struct {
	Name       string
	Index      int
	SzDecimals int32
}

type Client struct {
	httpClient *http.Client
	host       string

	mu     sync.Mutex
	meta   map[string]AssetInfo
	metaAt time.Time
}

func NewClient(httpClient *http.Client, host string) *Client {
	if strings.TrimSpace(host) == "" {
		host = MainnetURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient, host: strings.TrimRight(host, "/")}
}

func (c *Client) Host() string {
	if c == nil {
		return ""
	}
	return c.host
}

// Info posts a typed query to /info and decodes the response into out.
func (c *Client) Info(ctx context.Context, req any, out any) error {
	body, err := c.post(ctx, "/info", req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode info response: %w", err)
	}
	return nil
}

type metaResponse struct {
	Universe []struct {
		Name       string `json:"name"`
		SzDecimals int32  `json:"szDecimals"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

// Asset resolves a coin name ("BTC") to its index and size precision. The
// universe is cached for a few minutes.
func (c *Client) Asset(ctx context.Context, coin string) (AssetInfo, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	c.mu.Lock()
	fresh := c.meta != nil && time.Since(c.metaAt) < metaTTL
	info, ok := c.meta[coin]
	c.mu.Unlock()
	if fresh {
		if !ok {
			return AssetInfo{}, fmt.Errorf("%w %q", ErrUnknownAsset, coin)
		}
		return info, nil
	}

	var resp metaResponse
	if err := c.Info(ctx, map[string]any{"type": "meta"}, &resp); err != nil {
		return AssetInfo{}, err
	}
	next := make(map[string]AssetInfo, len(resp.Universe))
	for i, u := range resp.Universe {
		if u.IsDelisted {
			continue
		}
		name := strings.ToUpper(u.Name)
		next[name] = AssetInfo{Name: u.Name, Index: i, SzDecimals: u.SzDecimals}
	}
	c.mu.Lock()
	c.meta = next
	c.metaAt = time.Now()
	c.mu.Unlock()

	info, ok = next[coin]
	if !ok {
		return AssetInfo{}, fmt.Errorf("%w %q", ErrUnknownAsset, coin)
	}
	return info, nil
}

// AllMids returns the current mid price per coin.
func (c *Client) AllMids(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := c.Info(ctx, map[string]any{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}
	return parseMids(raw), nil
}

func parseMids(raw map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(raw))
	for coin, px := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(px))
		if err != nil {
			continue
		}
		out[strings.ToUpper(coin)] = d
	}
	return out
}

// OrderStatus looks an order up by cloid ("0x...") for the given user.
func (c *Client) OrderStatus(ctx context.Context, user, cloid string) (*OrderStatusResponse, error) {
	var resp OrderStatusResponse
	err := c.Info(ctx, map[string]any{
		"type": "orderStatus",
		"user": strings.ToLower(strings.TrimSpace(user)),
		"oid":  cloid,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}
