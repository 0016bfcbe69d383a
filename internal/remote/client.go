// Package remote is the HTTP transport to the planner server: one batch sync
// endpoint and the ordinary CRUD endpoints per domain.
//
// The transport carries no business logic and never retries. Network and
// timeout errors are returned wrapped; retry policy belongs to the caller.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response body ends up in a
// [StatusError].
const maxErrorBody = 4 << 10

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to [TokenSource].
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client talks to one domain's endpoints. W is the domain's wire type.
type Client[W Record] struct {
	baseURL string
	domain  string
	tokens  TokenSource
	hc      *http.Client
}

// NewClient creates a Client for domain rooted at baseURL. A nil hc gets a
// client with a 10 second timeout.
func NewClient[W Record](baseURL, domain string, tokens TokenSource, hc *http.Client) *Client[W] {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client[W]{
		baseURL: strings.TrimRight(baseURL, "/"),
		domain:  domain,
		tokens:  tokens,
		hc:      hc,
	}
}

// Domain returns the domain name the client was created for.
func (c *Client[W]) Domain() string { return c.domain }

// PushBatch sends changes to the domain's batch sync endpoint and returns the
// acknowledged and rejected subsets.
func (c *Client[W]) PushBatch(ctx context.Context, ownerID int64, changes []W) (BatchResult[W], error) {
	var res BatchResult[W]
	raw, err := c.do(ctx, http.MethodPost, c.path("sync"), BatchRequest[W]{OwnerID: ownerID, Changes: changes})
	if err != nil {
		return res, err
	}
	if err := decode(raw, &res); err != nil {
		return res, fmt.Errorf("pushing %s batch: %w", c.domain, err)
	}
	if res.OwnerID != 0 && res.OwnerID != ownerID {
		return res, fmt.Errorf("pushing %s batch: %w: owner %d, want %d",
			c.domain, ErrMalformedResponse, res.OwnerID, ownerID)
	}
	return res, nil
}

// Create posts a new record and returns the server's representation, or rec
// itself when the response body is empty.
func (c *Client[W]) Create(ctx context.Context, rec W) (W, error) {
	raw, err := c.do(ctx, http.MethodPost, c.path(""), rec)
	if err != nil {
		return rec, err
	}
	return decodeOr(raw, rec)
}

// Get fetches one record by server id.
func (c *Client[W]) Get(ctx context.Context, serverID int64) (W, error) {
	var out W
	raw, err := c.do(ctx, http.MethodGet, c.path(strconv.FormatInt(serverID, 10)), nil)
	if err != nil {
		return out, err
	}
	if err := decode(raw, &out); err != nil {
		return out, fmt.Errorf("getting %s %d: %w", c.domain, serverID, err)
	}
	return out, nil
}

// GetAll fetches every record the server holds for ownerID.
func (c *Client[W]) GetAll(ctx context.Context, ownerID int64) ([]W, error) {
	q := url.Values{"ownerId": {strconv.FormatInt(ownerID, 10)}}
	raw, err := c.do(ctx, http.MethodGet, c.path("")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out []W
	if err := decode(raw, &out); err != nil {
		return nil, fmt.Errorf("listing %s: %w", c.domain, err)
	}
	return out, nil
}

// Update replaces the record with the given server id and returns the
// server's representation, or rec itself when the response body is empty.
func (c *Client[W]) Update(ctx context.Context, serverID int64, rec W) (W, error) {
	raw, err := c.do(ctx, http.MethodPost, c.path(strconv.FormatInt(serverID, 10)), rec)
	if err != nil {
		return rec, err
	}
	return decodeOr(raw, rec)
}

// Delete removes the record with the given server id.
func (c *Client[W]) Delete(ctx context.Context, serverID int64) error {
	_, err := c.do(ctx, http.MethodDelete, c.path(strconv.FormatInt(serverID, 10)), nil)
	return err
}

func (c *Client[W]) path(suffix string) string {
	p := "/api/" + url.PathEscape(c.domain)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// do sends one request and returns the raw body of a 2xx response.
func (c *Client[W]) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", c.domain, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	return raw, nil
}

func decode(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func decodeOr[W Record](raw []byte, fallback W) (W, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	var out W
	if err := decode(raw, &out); err != nil {
		return fallback, err
	}
	return out, nil
}
