package page

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/relay"
)

// Client is a page that reaches the relay over HTTP.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
}

// NewClient posts to baseURL's relay endpoint claiming origin.
func NewClient(baseURL, origin string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		http:    &http.Client{Timeout: timeout},
	}
}

// Call sends method with params. An empty txid is replaced with a random
// one. A reply carrying a different txid is an error.
func (c *Client) Call(ctx context.Context, method, txid string, params map[string]string) (protocol.Response, error) {
	if method == "" {
		return protocol.Response{}, ErrNoMethod
	}
	if txid == "" {
		txid = uuid.NewString()
	}

	attrs := make(map[string]string, len(params)+2)
	for k, v := range params {
		attrs[k] = v
	}
	attrs[protocol.AttrMethod] = method
	attrs[protocol.AttrTxID] = txid

	resp, err := c.Fire(ctx, attrs)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.TxID.IsSet() && resp.TxID.String() != txid {
		return resp, fmt.Errorf("reply txid %q does not match request %q", resp.TxID.String(), txid)
	}
	return resp, nil
}

// Fire posts a raw attribute set and returns whatever the relay replied.
func (c *Client) Fire(ctx context.Context, attrs map[string]string) (protocol.Response, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("marshal attributes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+relay.RelayPath, bytes.NewReader(body))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.origin)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("relay request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return protocol.Response{}, fmt.Errorf("relay returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	resp, err := protocol.DecodeResponse(httpResp.Body)
	if err != nil {
		return protocol.Response{}, err
	}
	return *resp, nil
}
