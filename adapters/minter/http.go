package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// HTTPMinter delegates mints to an external minting service.
//
//	POST {endpoint}/mints         {tokenId, recipient, metadata} -> receipt
//	GET  {endpoint}/mints/{id}    receipt, or 404 when the token does not exist
//
// Every POST carries the token id as Idempotency-Key so the service can
// collapse a retried request onto the original mint.
type HTTPMinter struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
}

func NewHTTPMinter(endpoint, apiKey string, timeout time.Duration) (*HTTPMinter, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid mint endpoint %q", endpoint)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPMinter{
		baseURL: parsed,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

var (
	_ ports.Minter     = (*HTTPMinter)(nil)
	_ ports.MintLookup = (*HTTPMinter)(nil)
)

type mintRequest struct {
	TokenID   int64             `json:"tokenId"`
	Recipient string            `json:"recipient"`
	Metadata  core.MintMetadata `json:"metadata"`
}

// StatusError is returned when the minting service answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mint service returned %d: %s", e.Code, e.Body)
}

func (m *HTTPMinter) Mint(ctx context.Context, tokenID int64, recipient string, metadata core.MintMetadata) (core.MintReceipt, error) {
	body, err := json.Marshal(mintRequest{TokenID: tokenID, Recipient: recipient, Metadata: metadata})
	if err != nil {
		return core.MintReceipt{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := m.newRequest(ctx, http.MethodPost, "mints", bytes.NewReader(body))
	if err != nil {
		return core.MintReceipt{}, err
	}
	req.Header.Set("Idempotency-Key", strconv.FormatInt(tokenID, 10))

	var receipt core.MintReceipt
	if _, err := m.do(req, &receipt); err != nil {
		return core.MintReceipt{}, err
	}
	if receipt.Signature == "" {
		return core.MintReceipt{}, fmt.Errorf("mint service returned a receipt without signature")
	}
	if receipt.ConfirmedAt.IsZero() {
		receipt.ConfirmedAt = time.Now().UTC()
	}
	return receipt, nil
}

func (m *HTTPMinter) Lookup(ctx context.Context, tokenID int64) (core.MintReceipt, bool, error) {
	req, err := m.newRequest(ctx, http.MethodGet, path.Join("mints", strconv.FormatInt(tokenID, 10)), nil)
	if err != nil {
		return core.MintReceipt{}, false, err
	}

	var receipt core.MintReceipt
	status, err := m.do(req, &receipt)
	if status == http.StatusNotFound {
		return core.MintReceipt{}, false, nil
	}
	if err != nil {
		return core.MintReceipt{}, false, err
	}
	return receipt, true, nil
}

func (m *HTTPMinter) newRequest(ctx context.Context, method, reqPath string, body io.Reader) (*http.Request, error) {
	u := *m.baseURL
	u.Path = path.Join(m.baseURL.Path, reqPath)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	return req, nil
}

// do executes req and decodes a 2xx JSON body into out. The status code is
// returned even when err is set.
func (m *HTTPMinter) do(req *http.Request, out any) (int, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mint request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
