package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/dispatch"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/tracing"
)

// LocalTransport calls a dispatcher in the same process.
type LocalTransport struct {
	Handler dispatch.Handler
}

func (t LocalTransport) Forward(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if t.Handler == nil {
		return protocol.Response{}, fmt.Errorf("no privileged handler")
	}
	return t.Handler.Handle(ctx, req), nil
}

// HTTP endpoints. Pages post attributes to RelayPath; relays post requests
// to DispatchPath.
const (
	RelayPath    = "/v1/relay"
	DispatchPath = "/v1/dispatch"
)

// HTTPTransport forwards requests to a remote privileged process.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport posts to baseURL + DispatchPath. token may be empty.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = dispatch.DefaultTimeout + 5*time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Forward(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ctx, span := tracing.StartClientSpan(ctx, "relay forward",
		tracing.TxID(req.TxID.String()),
		tracing.Method(req.Method),
	)
	defer span.End()

	resp, err := t.forward(ctx, req)
	tracing.RecordError(span, err)
	return resp, err
}

func (t *HTTPTransport) forward(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	var body bytes.Buffer
	if err := protocol.EncodeRequest(&body, &req); err != nil {
		return protocol.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+DispatchPath, &body)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, httpReq.Header)
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("dispatch request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return protocol.Response{}, fmt.Errorf("dispatch returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, err := protocol.DecodeResponse(io.LimitReader(httpResp.Body, protocol.MaxInboundFrame))
	if err != nil {
		return protocol.Response{}, err
	}
	return *out, nil
}
