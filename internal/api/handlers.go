package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/relay"
	"github.com/mattjoyce/gpgbridge/internal/tracing"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Version:       s.config.Version,
	}
	if s.deps.State != nil {
		resp.State = s.deps.State()
	}
	respondJSON(w, http.StatusOK, resp)
}

// requestOrigin is the page origin claimed by the browser: Origin, or the
// origin of Referer when Origin is absent.
func requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" && o != "null" {
		return relay.TargetOrigin(o)
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		return relay.TargetOrigin(ref)
	}
	return ""
}

func setCORS(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
}

// handleRelayPreflight handles OPTIONS /v1/relay.
func (s *Server) handleRelayPreflight(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	if origin == "" {
		s.writeError(w, http.StatusBadRequest, "missing Origin")
		return
	}
	setCORS(w, origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// handleRelay handles POST /v1/relay. The body is the page's attribute set;
// the reply is delivered only to the origin that sent it.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	if origin == "" {
		s.writeError(w, http.StatusBadRequest, "missing Origin")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, protocol.MaxInboundFrame+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > protocol.MaxInboundFrame {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}
	attrs, err := protocol.DecodeAttributes(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deliver := relay.DelivererFunc(func(data []byte, targetOrigin string) error {
		if targetOrigin != origin {
			return relay.ErrOriginMismatch
		}
		setCORS(w, targetOrigin)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(data)
		return err
	})

	ev := relay.Event{Location: origin, Target: relay.Attributes(attrs)}
	if err := s.deps.Relay.HandleEvent(r.Context(), ev, deliver); err != nil {
		if errors.Is(err, relay.ErrOriginMismatch) {
			s.logger.Warn("dropping reply for another origin", "origin", origin)
			s.writeError(w, http.StatusBadGateway, "reply was addressed to another origin")
			return
		}
		s.logger.Warn("relay reply not delivered", "origin", origin, "error", err)
	}
}

// handleDispatch handles POST /v1/dispatch.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.DecodeRequest(io.LimitReader(r.Body, protocol.MaxInboundFrame))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := tracing.Extract(r.Context(), r.Header)
	respondJSON(w, http.StatusOK, s.deps.Dispatcher.Handle(ctx, *req))
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Version))
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
