package api

import (
	"github.com/mattjoyce/gpgbridge/internal/protocol"
	"github.com/mattjoyce/gpgbridge/internal/relay"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the HTTP surface.
func buildOpenAPIDoc(version string) map[string]any {
	if version == "" {
		version = "dev"
	}

	attrProps := map[string]any{
		protocol.AttrMethod: map[string]any{"type": "string", "enum": protocol.Methods},
		protocol.AttrTxID:   map[string]any{"type": []string{"string", "number"}},
	}
	for _, name := range protocol.Whitelist {
		attrProps[name] = map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	}

	envelope := map[string]any{
		"type": "object",
		"properties": map[string]any{
			protocol.FieldIsError:      map[string]any{"type": "boolean"},
			protocol.FieldErrorStr:     map[string]any{"type": "string"},
			protocol.FieldTargetOrigin: map[string]any{"type": "string"},
			protocol.FieldTxID:         map[string]any{"type": "string"},
		},
		"required":             []string{protocol.FieldIsError, protocol.FieldTargetOrigin},
		"additionalProperties": true,
	}
	jsonBody := func(schema any) map[string]any {
		return map[string]any{"application/json": map[string]any{"schema": schema}}
	}
	bearer := []any{map[string]any{"BearerAuth": []string{}}}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "gpgbridge",
			"version": version,
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{
					"operationId": "healthz",
					"responses":   map[string]any{"200": map[string]any{"description": "Service status"}},
				},
			},
			relay.RelayPath: map[string]any{
				"post": map[string]any{
					"operationId": "relay",
					"summary":     "Relay a page request to the privileged dispatcher",
					"requestBody": map[string]any{
						"required": true,
						"content":  jsonBody(map[string]any{"type": "object", "properties": attrProps}),
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Response envelope", "content": jsonBody(envelope)},
						"400": map[string]any{"description": "Missing Origin or malformed body"},
					},
				},
			},
			relay.DispatchPath: map[string]any{
				"post": map[string]any{
					"operationId": "dispatch",
					"summary":     "Dispatch a relayed request",
					"security":    bearer,
					"responses": map[string]any{
						"200": map[string]any{"description": "Response envelope", "content": jsonBody(envelope)},
						"401": map[string]any{"description": "Missing or invalid token"},
						"403": map[string]any{"description": "Insufficient scope"},
					},
				},
			},
			"/events": map[string]any{
				"get": map[string]any{
					"operationId": "events",
					"summary":     "Server-sent request and lifecycle events",
					"security":    bearer,
					"responses": map[string]any{
						"200": map[string]any{"description": "text/event-stream"},
					},
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
