// Package cfapi talks to the Cloudflare v4 REST API: token and zone
// verification, and lookup/removal of DNS records inside a zone.
// Record creation is left to `cloudflared tunnel route dns`.
package cfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/metrics"
)

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

var (
	ErrUnauthorized = errors.New("cloudflare api: authentication failed")
	ErrForbidden    = errors.New("cloudflare api: insufficient permissions")
	ErrNotFound     = errors.New("cloudflare api: not found")
)

// APIError is a non-2xx response. It unwraps to one of the sentinel
// errors when the status code has a specific meaning.
type APIError struct {
	StatusCode int
	Messages   []string
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("cloudflare api: status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("cloudflare api: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

type Client struct {
	httpClient *http.Client
	apiToken   string
	baseURL    string
}

func NewClient(baseURL, apiToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfResponse[T any] struct {
	Success bool      `json:"success"`
	Errors  []cfError `json:"errors"`
	Result  T         `json:"result"`
}

func gatherErrors[T any](resp cfResponse[T]) error {
	if resp.Success {
		return nil
	}
	if len(resp.Errors) == 0 {
		return errors.New("cloudflare api: unknown error")
	}
	msgs := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("cloudflare api: %s", strings.Join(msgs, "; "))
}

// do issues the request and decodes the envelope into v. endpoint is a
// low-cardinality label for metrics.
func (c *Client) do(ctx context.Context, endpoint, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.CloudflareAPIRequests.WithLabelValues(endpoint, "network_error").Inc()
		return fmt.Errorf("cloudflare api request: %w", err)
	}
	defer resp.Body.Close()
	metrics.CloudflareAPIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read cloudflare response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bytes.ToValidUTF8(body, nil)))}
		var env cfResponse[json.RawMessage]
		if json.Unmarshal(body, &env) == nil {
			for _, e := range env.Errors {
				apiErr.Messages = append(apiErr.Messages, e.Message)
			}
		}
		return apiErr
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode cloudflare response: %w", err)
	}
	return nil
}

// VerifyToken checks that the token authenticates at all.
func (c *Client) VerifyToken(ctx context.Context) error {
	var resp cfResponse[json.RawMessage]
	if err := c.do(ctx, "user", http.MethodGet, "/user", &resp); err != nil {
		return err
	}
	return gatherErrors(resp)
}

type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (c *Client) GetZone(ctx context.Context, zoneID string) (*Zone, error) {
	var resp cfResponse[Zone]
	if err := c.do(ctx, "zone", http.MethodGet, "/zones/"+url.PathEscape(zoneID), &resp); err != nil {
		return nil, err
	}
	if err := gatherErrors(resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

type DNSRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
}

// Records returns a DNS record manager bound to one zone.
func (c *Client) Records(zoneID string) *Records {
	return &Records{client: c, zoneID: zoneID}
}

type Records struct {
	client *Client
	zoneID string
}

// List returns records whose name equals hostname exactly. recordType
// narrows the query when non-empty.
func (r *Records) List(ctx context.Context, hostname, recordType string) ([]DNSRecord, error) {
	q := url.Values{}
	q.Set("name", hostname)
	if recordType != "" {
		q.Set("type", recordType)
	}
	path := fmt.Sprintf("/zones/%s/dns_records?%s", url.PathEscape(r.zoneID), q.Encode())

	var resp cfResponse[[]DNSRecord]
	if err := r.client.do(ctx, "dns_records.list", http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	if err := gatherErrors(resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Delete removes a record. A record that is already gone counts as
// deleted.
func (r *Records) Delete(ctx context.Context, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", url.PathEscape(r.zoneID), url.PathEscape(recordID))
	var resp cfResponse[json.RawMessage]
	err := r.client.do(ctx, "dns_records.delete", http.MethodDelete, path, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := gatherErrors(resp); err != nil {
		return err
	}
	metrics.DNSRecordsDeleted.Inc()
	return nil
}
