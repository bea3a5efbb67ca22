// Package native serves the dispatcher over browser native messaging: each
// message is a 4-byte little-endian length followed by JSON. stdout carries
// frames only, so logging must go elsewhere.
package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/gpgbridge/internal/dispatch"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
)

// Host serves a dispatcher over one native messaging stream pair.
type Host struct {
	handler dispatch.Handler
	logger  *slog.Logger

	writeMu sync.Mutex
}

// NewHost returns a Host answering with h.
func NewHost(h dispatch.Handler) *Host {
	return &Host{handler: h, logger: log.WithComponent("native")}
}

// Serve reads requests from r until EOF or ctx is cancelled and writes one
// reply per request to w. Requests run concurrently; Serve returns after the
// last reply is written.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			frame, err := protocol.ReadFrame(r, protocol.MaxInboundFrame)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				select {
				case err := <-readErr:
					if errors.Is(err, io.EOF) {
						h.logger.Info("browser closed the stream")
						return nil
					}
					return fmt.Errorf("read frame: %w", err)
				default:
					return ctx.Err()
				}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.handle(ctx, frame, w)
			}()
		}
	}
}

func (h *Host) handle(ctx context.Context, frame []byte, w io.Writer) {
	var req protocol.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		h.logger.Warn("undecodable request", "error", err)
		resp := protocol.NewResponse("", protocol.TxID{})
		resp.Fail(dispatch.ExceptionPrefix + "malformed request")
		h.reply(w, resp)
		return
	}
	h.reply(w, h.handler.Handle(ctx, req))
}

func (h *Host) reply(w io.Writer, resp protocol.Response) {
	data, err := json.Marshal(resp)
	if err == nil && len(data) > protocol.MaxOutboundFrame {
		err = protocol.ErrFrameTooLarge
	}
	if err != nil {
		h.logger.Warn("reply not sendable", "txid", resp.TxID.String(), "error", err)
		fallback := protocol.NewResponse(resp.TargetOrigin, resp.TxID)
		fallback.Fail(dispatch.ExceptionPrefix + err.Error())
		data, _ = json.Marshal(fallback)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := protocol.WriteFrame(w, data, protocol.MaxOutboundFrame); err != nil {
		h.logger.Error("failed to write reply", "txid", resp.TxID.String(), "error", err)
	}
}
