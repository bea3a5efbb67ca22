package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request to JSON and writes it to w. An empty
// method is encoded as-is; the dispatcher answers it as unsupported.
func EncodeRequest(w io.Writer, req *Request) error {
	if !req.TxID.IsSet() {
		return fmt.Errorf("request missing required field: txid")
	}

	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeRequest reads a Request from JSON in r. Unknown fields are ignored so
// newer relays can talk to older dispatchers.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse serializes a Response to JSON and writes it to w.
func EncodeResponse(w io.Writer, resp Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// DecodeResponse reads a Response from JSON in r. A result that never set
// isError keeps its fields with isError true and no errorStr.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// DecodeAttributes parses a JSON object of page-supplied attributes.
// Strings are kept as-is; numbers and booleans become their literal text;
// null means absent. Nested values are rejected.
func DecodeAttributes(data []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("attributes must be a JSON object: %w", err)
	}

	out := make(map[string]string, len(raw))
	for name, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		switch v[0] {
		case '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			out[name] = s
		case '{', '[':
			return nil, fmt.Errorf("attribute %q: nested values are not supported", name)
		default:
			// true, false, or a number; keep the literal text
			out[name] = string(v)
		}
	}
	return out, nil
}
