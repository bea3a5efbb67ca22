// Package processor validates a relayed request, calls the capability and
// folds its result into the page response.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/keyid"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
)

// Processor turns a validated request into one capability call.
type Processor struct {
	engine capability.Capability
	prefs  prefs.Service
	logger *slog.Logger
}

// New returns a Processor over engine. store supplies the default signing
// key and may be nil.
func New(engine capability.Capability, store prefs.Service) *Processor {
	return &Processor{
		engine: engine,
		prefs:  store,
		logger: log.WithComponent("processor"),
	}
}

// Process handles one request. Validation failures come back as error
// responses; a non-nil error means the capability call itself failed and the
// caller decides how to report it.
//
// The response starts as an error. Only the capability's own result fields
// clear isError.
func (p *Processor) Process(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	resp := protocol.NewResponse(req.TargetOrigin, req.TxID)

	defaults, err := p.defaultKeys(ctx)
	if err != nil {
		return resp, err
	}

	call, failure := Parse(req, defaults)
	if call == nil {
		resp.ErrorStr = failure
		p.logger.Debug("request rejected", "txid", req.TxID.String(), "method", req.Method, "reason", failure)
		return resp, nil
	}

	res, err := Invoke(ctx, p.engine, call)
	if err != nil {
		return resp, err
	}
	if res != nil {
		resp.Merge(res.Fields())
	}
	return resp, nil
}

func (p *Processor) defaultKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	if p.prefs == nil {
		return keys, nil
	}
	id, ok, err := p.prefs.Get(ctx, prefs.KeyDefaultKeyID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", prefs.KeyDefaultKeyID, err)
	}
	if ok && keyid.Valid(id) {
		keys = append(keys, id)
	}
	return keys, nil
}
