// Package relay carries page requests to the privileged dispatcher and posts
// the replies back to the requesting origin. One Listener serves every
// transport.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/mattjoyce/gpgbridge/internal/dispatch"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
)

const (
	ErrStrNoTxID   = "No txid specified"
	ErrStrNoMethod = "No method specified"
)

var ErrOriginMismatch = errors.New("target origin does not match window origin")

// Carrier exposes the named attributes a page set on its request element.
type Carrier interface {
	Attribute(name string) (string, bool)
}

// Attributes is a Carrier backed by a map. A missing key is an absent
// attribute.
type Attributes map[string]string

func (a Attributes) Attribute(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

// Event is a request fired by a page: where the page lives and the element
// holding the request attributes.
type Event struct {
	Location string
	Target   Carrier
}

// Deliverer posts a serialized reply to a page. Delivery is scoped to
// targetOrigin.
type Deliverer interface {
	PostMessage(data []byte, targetOrigin string) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(data []byte, targetOrigin string) error

func (f DelivererFunc) PostMessage(data []byte, targetOrigin string) error {
	return f(data, targetOrigin)
}

// Transport forwards a request to the privileged side and returns its reply.
type Transport interface {
	Forward(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// TargetOrigin derives scheme://host[:port] from a page location. file:
// locations get a warning since replies cannot be posted to them.
func TargetOrigin(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		log.WithComponent("relay").Warn("unparseable page location", "location", location)
		return ""
	}
	if u.Scheme == "file" {
		log.WithComponent("relay").Warn("message passing is not supported for file: origins", "location", location)
	}
	return u.Scheme + "://" + u.Host
}

// Window is one page's message endpoint. Messages posted for any other origin
// are dropped.
type Window struct {
	origin string

	mu        sync.Mutex
	nextID    int
	listeners map[int]func([]byte)
}

func NewWindow(location string) *Window {
	return &Window{
		origin:    TargetOrigin(location),
		listeners: make(map[int]func([]byte)),
	}
}

// Origin returns the window's origin.
func (w *Window) Origin() string { return w.origin }

// AddListener registers fn for every accepted message. The returned function
// removes it.
func (w *Window) AddListener(fn func([]byte)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// PostMessage hands data to the listeners when targetOrigin is the window's
// own origin.
func (w *Window) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != w.origin {
		return fmt.Errorf("%w: %q", ErrOriginMismatch, targetOrigin)
	}
	w.mu.Lock()
	fns := make([]func([]byte), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
	return nil
}

// Listener turns page events into forwarded requests.
type Listener struct {
	transport Transport
	logger    *slog.Logger
}

func NewListener(t Transport) *Listener {
	return &Listener{transport: t, logger: log.WithComponent("relay")}
}

// HandleEvent validates ev, forwards it and delivers exactly one reply
// through d. The returned error reports delivery problems only.
func (l *Listener) HandleEvent(ctx context.Context, ev Event, d Deliverer) error {
	resp := l.Relay(ctx, ev)
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := d.PostMessage(data, resp.TargetOrigin); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	return nil
}

// Relay performs HandleEvent without delivery and returns the reply.
func (l *Listener) Relay(ctx context.Context, ev Event) protocol.Response {
	origin := TargetOrigin(ev.Location)
	target := ev.Target
	if target == nil {
		target = Attributes{}
	}

	resp := protocol.NewResponse(origin, protocol.TxID{})
	txid, ok := target.Attribute(protocol.AttrTxID)
	if !ok {
		resp.Fail(ErrStrNoTxID)
		return resp
	}
	method, ok := target.Attribute(protocol.AttrMethod)
	if !ok {
		resp.Fail(ErrStrNoMethod)
		return resp
	}

	req := protocol.Request{
		Method:       method,
		TargetOrigin: origin,
		TxID:         protocol.NewTxID(txid),
	}
	for _, name := range protocol.Whitelist {
		if v, ok := target.Attribute(name); ok {
			*req.Field(name) = protocol.String(v)
		}
	}

	reply, err := l.transport.Forward(ctx, req)
	if err != nil {
		l.logger.Warn("forward failed", "txid", txid, "method", method, "error", err)
		resp = protocol.NewResponse(origin, req.TxID)
		resp.Fail(dispatch.ExceptionPrefix + err.Error())
		return resp
	}
	if reply.TargetOrigin == "" {
		reply.TargetOrigin = origin
	}
	return reply
}
