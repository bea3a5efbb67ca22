package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Method names accepted by the privileged dispatcher.
const (
	MethodEncrypt        = "encrypt"
	MethodDecrypt        = "decrypt"
	MethodSign           = "sign"
	MethodClearSign      = "clearsign"
	MethodVerify         = "verify"
	MethodVerifyClear    = "verify_clear"
	MethodGetKey         = "get_key"
	MethodGetUids        = "get_uids"
	MethodGetVersion     = "get_gnupg_version"
	MethodGetFingerprint = "get_fingerprint"
	MethodGetTrust       = "get_trust"
	MethodSignUid        = "sign_uid"
)

// Methods lists every supported method in dispatch-table order.
var Methods = []string{
	MethodEncrypt, MethodDecrypt, MethodSign, MethodClearSign, MethodVerify,
	MethodVerifyClear, MethodGetKey, MethodGetUids, MethodGetVersion,
	MethodGetFingerprint, MethodGetTrust, MethodSignUid,
}

// Attribute names a page may set on a request carrier. The relay copies
// exactly these onto the forwarded message.
const (
	AttrMethod          = "method"
	AttrTxID            = "txid"
	AttrRawText         = "rawtext"
	AttrHiddenKeyIDs    = "hidden_keyids"
	AttrAlwaysTrust     = "always_trust"
	AttrSign            = "sign"
	AttrCipherText      = "cipherText"
	AttrKeyID           = "keyid"
	AttrSignedText      = "signedtext"
	AttrSignature       = "signature"
	AttrClearSignedText = "clearsignedtext"
	AttrKeyserver       = "keyserver"
	AttrUID             = "uid"
	AttrLevel           = "level"
	AttrKey             = "key"
	AttrKeyIDs          = "keyids"
)

// Whitelist is the optional attribute set copied by the relay, in the order
// the relay reads them. method and txid are handled separately.
var Whitelist = []string{
	AttrRawText, AttrHiddenKeyIDs, AttrAlwaysTrust, AttrSign, AttrCipherText,
	AttrKeyID, AttrSignedText, AttrSignature, AttrClearSignedText,
	AttrKeyserver, AttrUID, AttrLevel, AttrKey, AttrKeyIDs,
}

// Request is the structured message forwarded from a relay to the privileged
// dispatcher. Optional fields are nil when the page did not set them; an empty
// string is a present value.
type Request struct {
	Method       string  `json:"method"`
	TargetOrigin string  `json:"targetOrigin"`
	TxID         TxID    `json:"txid"`
	RawText      *string `json:"rawtext,omitempty"`
	HiddenKeyIDs *string `json:"hidden_keyids,omitempty"`
	AlwaysTrust  *string `json:"always_trust,omitempty"`
	Sign         *string `json:"sign,omitempty"`
	CipherText   *string `json:"cipherText,omitempty"`
	KeyID        *string `json:"keyid,omitempty"`
	SignedText   *string `json:"signedtext,omitempty"`
	Signature    *string `json:"signature,omitempty"`
	ClearSigned  *string `json:"clearsignedtext,omitempty"`
	Keyserver    *string `json:"keyserver,omitempty"`
	UID          *string `json:"uid,omitempty"`
	Level        *string `json:"level,omitempty"`
	Key          *string `json:"key,omitempty"`
	KeyIDs       *string `json:"keyids,omitempty"`
}

// Field returns a pointer to the optional field stored under attribute name,
// or nil when name is not a whitelisted attribute.
func (r *Request) Field(name string) **string {
	switch name {
	case AttrRawText:
		return &r.RawText
	case AttrHiddenKeyIDs:
		return &r.HiddenKeyIDs
	case AttrAlwaysTrust:
		return &r.AlwaysTrust
	case AttrSign:
		return &r.Sign
	case AttrCipherText:
		return &r.CipherText
	case AttrKeyID:
		return &r.KeyID
	case AttrSignedText:
		return &r.SignedText
	case AttrSignature:
		return &r.Signature
	case AttrClearSignedText:
		return &r.ClearSigned
	case AttrKeyserver:
		return &r.Keyserver
	case AttrUID:
		return &r.UID
	case AttrLevel:
		return &r.Level
	case AttrKey:
		return &r.Key
	case AttrKeyIDs:
		return &r.KeyIDs
	}
	return nil
}

// String returns a pointer to s, for building requests in code.
func String(s string) *string { return &s }

// TxID is a caller-chosen correlation token. It is never interpreted: it is
// compared and echoed as an opaque string. JSON numbers are accepted on input
// and keep their literal digits; output is always a JSON string.
type TxID struct {
	value string
	set   bool
}

// NewTxID returns a present txid holding s.
func NewTxID(s string) TxID { return TxID{value: s, set: true} }

// IsSet reports whether a txid was supplied.
func (t TxID) IsSet() bool { return t.set }

// String returns the token, or "" when absent.
func (t TxID) String() string { return t.value }

func (t TxID) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.value)
}

func (t *TxID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = TxID{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode txid: %w", err)
		}
		*t = NewTxID(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode txid: %w", err)
		}
		*t = NewTxID(n.String())
		return nil
	}
	return fmt.Errorf("txid must be a string or number, got %s", data)
}

// Envelope field names owned by the response itself.
const (
	FieldIsError      = "isError"
	FieldErrorStr     = "errorStr"
	FieldTargetOrigin = "targetOrigin"
	FieldTxID         = "txid"
)

// Response is the envelope returned to the page. Fields holds whatever the
// capability returned beyond the envelope keys; the processor is transparent
// to its schema.
type Response struct {
	IsError      bool
	ErrorStr     string
	TargetOrigin string
	TxID         TxID
	Fields       map[string]any
}

// NewResponse returns an envelope that is an error until something clears it.
func NewResponse(targetOrigin string, txid TxID) Response {
	return Response{
		IsError:      true,
		TargetOrigin: targetOrigin,
		TxID:         txid,
	}
}

// Fail marks the response as an error with msg.
func (r *Response) Fail(msg string) {
	r.IsError = true
	r.ErrorStr = msg
}

// Merge shallow-copies fields into the response. Later keys overwrite
// earlier ones, envelope keys included.
func (r *Response) Merge(fields map[string]any) {
	for k, v := range fields {
		switch k {
		case FieldIsError:
			if b, ok := v.(bool); ok {
				r.IsError = b
			}
		case FieldErrorStr:
			if s, ok := v.(string); ok {
				r.ErrorStr = s
			}
		case FieldTargetOrigin:
			if s, ok := v.(string); ok {
				r.TargetOrigin = s
			}
		case FieldTxID:
			switch tv := v.(type) {
			case string:
				r.TxID = NewTxID(tv)
			case TxID:
				r.TxID = tv
			}
		default:
			if r.Fields == nil {
				r.Fields = make(map[string]any, len(fields))
			}
			r.Fields[k] = v
		}
	}
}

// Get returns a result field by name, envelope keys included.
func (r Response) Get(name string) (any, bool) {
	switch name {
	case FieldIsError:
		return r.IsError, true
	case FieldErrorStr:
		return r.ErrorStr, r.IsError
	case FieldTargetOrigin:
		return r.TargetOrigin, true
	case FieldTxID:
		return r.TxID.String(), r.TxID.IsSet()
	}
	v, ok := r.Fields[name]
	return v, ok
}

// MarshalJSON flattens the envelope and the result fields into one object.
// errorStr is emitted only for errors and txid only when present.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	maps.Copy(out, r.Fields)
	out[FieldIsError] = r.IsError
	if r.IsError {
		out[FieldErrorStr] = r.ErrorStr
	}
	out[FieldTargetOrigin] = r.TargetOrigin
	if r.TxID.IsSet() {
		out[FieldTxID] = r.TxID.String()
	}
	return json.Marshal(out)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Response{}
	for k, v := range raw {
		var err error
		switch k {
		case FieldIsError:
			err = json.Unmarshal(v, &r.IsError)
		case FieldErrorStr:
			err = json.Unmarshal(v, &r.ErrorStr)
		case FieldTargetOrigin:
			err = json.Unmarshal(v, &r.TargetOrigin)
		case FieldTxID:
			err = json.Unmarshal(v, &r.TxID)
		default:
			var val any
			if err = json.Unmarshal(v, &val); err == nil {
				if r.Fields == nil {
					r.Fields = make(map[string]any)
				}
				r.Fields[k] = val
			}
		}
		if err != nil {
			return fmt.Errorf("decode response field %q: %w", k, err)
		}
	}
	return nil
}
