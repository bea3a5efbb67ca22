package native

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/dispatch"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type harness struct {
	in     *io.PipeWriter
	out    *io.PipeReader
	served chan error
}

func start(t *testing.T, h dispatch.Handler) *harness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- NewHost(h).Serve(context.Background(), inR, outW)
		outW.Close()
	}()
	return &harness{in: inW, out: outR, served: served}
}

func (h *harness) send(t *testing.T, data string) {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(h.in, []byte(data), protocol.MaxInboundFrame))
}

func (h *harness) recv(t *testing.T) map[string]any {
	t.Helper()
	frame, err := protocol.ReadFrame(h.out, protocol.MaxOutboundFrame)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(frame, &m))
	return m
}

func (h *harness) close(t *testing.T) {
	t.Helper()
	h.in.Close()
	select {
	case err := <-h.served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func echo(_ context.Context, req protocol.Request) protocol.Response {
	resp := protocol.NewResponse(req.TargetOrigin, req.TxID)
	resp.Merge(map[string]any{"isError": false, "retstring": req.Method})
	return resp
}

func TestServeRoundTrip(t *testing.T) {
	h := start(t, dispatch.HandlerFunc(echo))

	h.send(t, `{"method":"get_gnupg_version","txid":5,"targetOrigin":"https://a.example"}`)
	reply := h.recv(t)
	assert.Equal(t, "5", reply["txid"])
	assert.Equal(t, "get_gnupg_version", reply["retstring"])
	assert.Equal(t, false, reply["isError"])

	h.close(t)
}

func TestServeHandlesConcurrently(t *testing.T) {
	release := make(chan struct{})
	h := start(t, dispatch.HandlerFunc(func(ctx context.Context, req protocol.Request) protocol.Response {
		if req.TxID.String() == "slow" {
			<-release
		}
		return echo(ctx, req)
	}))

	h.send(t, `{"method":"sign","txid":"slow"}`)
	h.send(t, `{"method":"decrypt","txid":"fast"}`)

	assert.Equal(t, "fast", h.recv(t)["txid"])
	close(release)
	assert.Equal(t, "slow", h.recv(t)["txid"])

	h.close(t)
}

func TestServeMalformedRequest(t *testing.T) {
	h := start(t, dispatch.HandlerFunc(echo))

	h.send(t, `{"method":`)
	reply := h.recv(t)
	assert.Equal(t, true, reply["isError"])
	assert.Equal(t, dispatch.ExceptionPrefix+"malformed request", reply["errorStr"])
	assert.NotContains(t, reply, "txid")

	h.close(t)
}

func TestServeOversizedReply(t *testing.T) {
	big := strings.Repeat("x", protocol.MaxOutboundFrame)
	h := start(t, dispatch.HandlerFunc(func(_ context.Context, req protocol.Request) protocol.Response {
		resp := protocol.NewResponse(req.TargetOrigin, req.TxID)
		resp.Merge(map[string]any{"isError": false, "data": big})
		return resp
	}))

	h.send(t, `{"method":"decrypt","txid":"big"}`)
	reply := h.recv(t)
	assert.Equal(t, "big", reply["txid"])
	assert.Equal(t, true, reply["isError"])
	assert.Contains(t, reply["errorStr"], dispatch.ExceptionPrefix)

	h.close(t)
}

func TestServeStopsOnCancel(t *testing.T) {
	inR, _ := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewHost(dispatch.HandlerFunc(echo)).Serve(ctx, inR, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve ignored cancellation")
	}
}
