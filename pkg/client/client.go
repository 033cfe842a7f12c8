// Package client is a typed HTTP client for the sctid API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Client is a thin HTTP wrapper for the sctid API.
type Client struct {
	URL        string
	HTTPClient *http.Client

	// Token, when set, is sent as a bearer token on every request.
	Token string
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP/2 cleartext client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithToken authenticates requests with an admin bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// New creates a new client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		URL:        strings.TrimRight(baseURL, "/"),
		HTTPClient: defaultHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     10 * time.Second,
	}
	return &http.Client{
		Timeout:   60 * time.Second,
		Transport: tr,
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Record is an identifier lifecycle record.
type Record struct {
	SctID      string    `json:"sctid"`
	Sequence   uint64    `json:"sequence"`
	Namespace  string    `json:"namespace"`
	Category   string    `json:"category"`
	CheckDigit int       `json:"checkDigit"`
	Status     string    `json:"status"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Reservation is a named item-id range excluded from generation. A nil
// Namespace applies to every namespace.
type Reservation struct {
	Name       string   `json:"name"`
	LowerBound uint64   `json:"lowerBound"`
	UpperBound uint64   `json:"upperBound"`
	Namespace  *string  `json:"namespace,omitempty"`
	Categories []string `json:"categories"`
}

// Generate allocates quantity new identifiers.
func (c *Client) Generate(ctx context.Context, namespace, category string, quantity int) ([]string, error) {
	body := map[string]any{
		"namespace": namespace,
		"category":  category,
		"quantity":  quantity,
	}
	var result struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ids/generate", body, &result); err != nil {
		return nil, err
	}
	return result.IDs, nil
}

// Register records externally allocated identifiers and returns the newly
// recorded ones.
func (c *Client) Register(ctx context.Context, ids []string) ([]string, error) {
	var result struct {
		Registered []string `json:"registered"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ids/register", idsBody(ids), &result); err != nil {
		return nil, err
	}
	return result.Registered, nil
}

// Publish marks ids as published and returns the records that changed.
func (c *Client) Publish(ctx context.Context, ids []string) ([]Record, error) {
	return c.transition(ctx, "/api/v1/ids/publish", ids)
}

// Deprecate marks ids as deprecated and returns the records that changed.
func (c *Client) Deprecate(ctx context.Context, ids []string) ([]Record, error) {
	return c.transition(ctx, "/api/v1/ids/deprecate", ids)
}

func (c *Client) transition(ctx context.Context, path string, ids []string) ([]Record, error) {
	var result struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, path, idsBody(ids), &result); err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Lookup returns the record of every id; unknown ids come back Available.
func (c *Client) Lookup(ctx context.Context, ids []string) (map[string]Record, error) {
	var result struct {
		Records map[string]Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ids/lookup", idsBody(ids), &result); err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Get returns the record of a single identifier.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/api/v1/ids/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReservations returns every reservation range.
func (c *Client) ListReservations(ctx context.Context) ([]Reservation, error) {
	var result []Reservation
	if err := c.do(ctx, http.MethodGet, "/api/v1/reservations", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateReservation adds a reservation range. It requires an admin token
// when the server has admin auth configured.
func (c *Client) CreateReservation(ctx context.Context, r Reservation) (*Reservation, error) {
	var created Reservation
	if err := c.do(ctx, http.MethodPost, "/api/v1/reservations", r, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteReservation removes the named reservation range.
func (c *Client) DeleteReservation(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/reservations/"+url.PathEscape(name), nil, nil)
}

// Health checks that the server is serving.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func idsBody(ids []string) map[string]any {
	return map[string]any{"ids": ids}
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			return &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
		}
		return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
