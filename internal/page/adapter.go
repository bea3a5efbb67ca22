// Package page is the page side of the bridge: it turns an intent into a
// request attribute set, fires it at a relay and waits for the matching
// reply.
package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/relay"
)

var (
	ErrNoMethod      = errors.New("method is required")
	ErrDuplicateTxID = errors.New("txid already awaiting a reply")
)

const unmatchedBuffer = 16

// Adapter is an in-process page bound to one location.
type Adapter struct {
	location string
	window   *relay.Window
	listener *relay.Listener

	mu      sync.Mutex
	pending map[string]chan protocol.Response

	unmatched chan protocol.Response
	remove    func()
	logger    *slog.Logger
}

func NewAdapter(location string, l *relay.Listener) *Adapter {
	a := &Adapter{
		location:  location,
		window:    relay.NewWindow(location),
		listener:  l,
		pending:   make(map[string]chan protocol.Response),
		unmatched: make(chan protocol.Response, unmatchedBuffer),
		logger:    log.WithComponent("page"),
	}
	a.remove = a.window.AddListener(a.onMessage)
	return a
}

// Window returns the page's message endpoint.
func (a *Adapter) Window() *relay.Window { return a.window }

// Unmatched carries replies that have no txid, i.e. relay validation
// failures. When nobody drains it further replies are dropped.
func (a *Adapter) Unmatched() <-chan protocol.Response { return a.unmatched }

// Call sends method with params and waits for its reply. An empty txid is
// replaced with a random one.
func (a *Adapter) Call(ctx context.Context, method, txid string, params map[string]string) (protocol.Response, error) {
	if method == "" {
		return protocol.Response{}, ErrNoMethod
	}
	if txid == "" {
		txid = uuid.NewString()
	}

	ch := make(chan protocol.Response, 1)
	a.mu.Lock()
	if _, busy := a.pending[txid]; busy {
		a.mu.Unlock()
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrDuplicateTxID, txid)
	}
	a.pending[txid] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, txid)
		a.mu.Unlock()
	}()

	attrs := relay.Attributes{}
	maps.Copy(attrs, params)
	attrs[protocol.AttrMethod] = method
	attrs[protocol.AttrTxID] = txid
	a.Fire(ctx, attrs)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

// Fire dispatches a raw attribute set at the relay without waiting.
func (a *Adapter) Fire(ctx context.Context, attrs relay.Attributes) {
	ev := relay.Event{Location: a.location, Target: attrs}
	go func() {
		if err := a.listener.HandleEvent(ctx, ev, a.window); err != nil {
			a.logger.Warn("relay did not deliver reply", "error", err)
		}
	}()
}

// Close detaches the adapter from its window.
func (a *Adapter) Close() {
	a.remove()
}

func (a *Adapter) onMessage(data []byte) {
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		a.logger.Debug("ignoring undecodable message", "error", err)
		return
	}

	if !resp.TxID.IsSet() {
		select {
		case a.unmatched <- resp:
		default:
			a.logger.Debug("dropping uncorrelated reply", "errorStr", resp.ErrorStr)
		}
		return
	}

	a.mu.Lock()
	ch, ok := a.pending[resp.TxID.String()]
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("dropping reply for unknown txid", "txid", resp.TxID.String())
		return
	}
	select {
	case ch <- resp:
	default:
	}
}
