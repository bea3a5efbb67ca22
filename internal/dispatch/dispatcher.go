package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/events"
	"github.com/mattjoyce/gpgbridge/internal/lifecycle"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
	"github.com/mattjoyce/gpgbridge/internal/processor"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/session"
	"github.com/mattjoyce/gpgbridge/internal/tracing"
)

const (
	ErrStrConfigure = "Error configuring plugin"
	// ExceptionPrefix starts every errorStr for a request that failed outside
	// validation.
	ExceptionPrefix = "Unexpected JS exception: "

	DefaultTimeout = 60 * time.Second
)

// Handler answers one request. Relays depend on this rather than on
// Dispatcher.
type Handler interface {
	Handle(ctx context.Context, req protocol.Request) protocol.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req protocol.Request) protocol.Response

func (f HandlerFunc) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	return f(ctx, req)
}

// Dispatcher answers relayed requests for one privileged session.
type Dispatcher struct {
	session   *session.Session
	processor *processor.Processor
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each request. Zero or negative keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// New returns a Dispatcher bound to sess.
func New(sess *session.Session, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		session:   sess,
		processor: processor.New(sess.Capability, sess.Prefs),
		timeout:   DefaultTimeout,
		logger:    log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes req and returns its response. It never returns without a
// response, whatever the capability does.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	start := time.Now()
	txid := req.TxID.String()

	ctx, span := tracing.StartHandlerSpan(ctx, "dispatch "+req.Method,
		tracing.TxID(txid),
		tracing.Method(req.Method),
		tracing.Origin(req.TargetOrigin),
	)
	defer span.End()

	logger := log.WithTxID(txid, req.Method)
	logger.Debug("request received", "origin", req.TargetOrigin)
	d.publish(events.TypeRequestReceived, events.RequestReceived{
		TxID:   txid,
		Method: req.Method,
		Origin: req.TargetOrigin,
	})

	resp, err := d.handle(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Warn("request failed", "error", err)
	}
	span.SetAttributes(tracing.Failed(resp.IsError))

	elapsed := time.Since(start)
	logger.Info("request completed", "is_error", resp.IsError, "duration_ms", elapsed.Milliseconds())
	d.publish(events.TypeRequestCompleted, events.RequestCompleted{
		TxID:       txid,
		Method:     req.Method,
		Origin:     req.TargetOrigin,
		IsError:    resp.IsError,
		ErrorStr:   resp.ErrorStr,
		DurationMS: elapsed.Milliseconds(),
	})
	return resp
}

// handle returns the response and, when the request failed outside
// validation, the cause.
func (d *Dispatcher) handle(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if err := d.ensureConfigured(ctx); err != nil {
		resp := protocol.NewResponse(req.TargetOrigin, req.TxID)
		resp.Fail(ErrStrConfigure)
		return resp, fmt.Errorf("configure: %w", err)
	}

	resp, err := d.run(ctx, req)
	if err != nil {
		resp = protocol.NewResponse(req.TargetOrigin, req.TxID)
		resp.Fail(ExceptionPrefix + err.Error())
		return resp, err
	}
	return resp, nil
}

// ensureConfigured configures the capability when it is not yet usable or
// its preferences are stale.
func (d *Dispatcher) ensureConfigured(ctx context.Context) error {
	lc := d.session.Lifecycle
	if d.session.Capability == nil || lc.State() != lifecycle.Configured {
		if err := lc.Configure(ctx); err != nil {
			return err
		}
	}

	stale, err := prefs.Stale(ctx, d.session.Prefs)
	if err != nil {
		return err
	}
	if stale {
		d.logger.Debug("preferences changed, reconfiguring")
		return lc.Configure(ctx)
	}
	return nil
}

type outcome struct {
	resp protocol.Response
	err  error
}

// run executes the processor in its own goroutine so a stalled capability
// only costs this request its timeout.
func (d *Dispatcher) run(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("processor panic", "txid", req.TxID.String(), "panic", r, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%v", r)}
			}
		}()
		resp, err := d.processor.Process(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return o.resp, d.describe(o.err)
		}
		return o.resp, nil
	case <-ctx.Done():
		return protocol.Response{}, d.describe(ctx.Err())
	}
}

func (d *Dispatcher) describe(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("request timed out after %s", d.timeout)
	case errors.Is(err, context.Canceled):
		return errors.New("request cancelled")
	}
	return err
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.session.Events != nil {
		d.session.Events.Publish(eventType, data)
	}
}
