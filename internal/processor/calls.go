package processor

import (
	"context"
	"fmt"

	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/keyid"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
)

// Validation failures reported to pages.
const (
	ErrStrEncryptArgs     = "Not all required arguments (rawtext,target_keys, always_trust) provided."
	ErrStrAlwaysTrust     = `Invalid always_trust value (must be "true" or "false").`
	ErrStrDecryptArgs     = "No ciphertext provided."
	ErrStrSignArgs        = "No rawtext or key ID provided."
	ErrStrVerifyArgs      = "No signedtext or signature provided."
	ErrStrVerifyClearArgs = "No clear-signed text provided."
	ErrStrGetKeyArgs      = "Key ID or Keyserver not provided."
	ErrStrGetUidsArgs     = "Invalid key ID or no key ID provided."
	ErrStrKeyIDArgs       = "No key ID provided."
	ErrStrSignUidArgs     = "No key ID, uid, or level provided."
	ErrStrUnsupported     = "Unsupported method"
)

// Call is one validated capability invocation.
type Call interface {
	Method() string
}

type EncryptCall struct {
	Text         string
	TargetKeyIDs []string
	HiddenKeyIDs []string
	AlwaysTrust  bool
	SigningKey   string
}

type DecryptCall struct {
	CipherText string
}

type SignCall struct {
	Text      string
	KeyID     string
	ClearSign bool
}

// VerifyCall with an empty Signature verifies clear-signed text.
type VerifyCall struct {
	Text      string
	Signature string
	Clear     bool
}

type GetKeyCall struct {
	KeyID     string
	Keyserver string
}

type GetUidsCall struct{ KeyID string }

type GetVersionCall struct{}

type GetFingerprintCall struct{ KeyID string }

type GetTrustCall struct{ KeyID string }

type SignUidCall struct {
	KeyID string
	UID   string
	Level string
}

func (EncryptCall) Method() string    { return protocol.MethodEncrypt }
func (DecryptCall) Method() string    { return protocol.MethodDecrypt }
func (GetKeyCall) Method() string     { return protocol.MethodGetKey }
func (GetUidsCall) Method() string    { return protocol.MethodGetUids }
func (GetVersionCall) Method() string { return protocol.MethodGetVersion }
func (GetTrustCall) Method() string   { return protocol.MethodGetTrust }
func (SignUidCall) Method() string    { return protocol.MethodSignUid }

func (GetFingerprintCall) Method() string { return protocol.MethodGetFingerprint }

func (c SignCall) Method() string {
	if c.ClearSign {
		return protocol.MethodClearSign
	}
	return protocol.MethodSign
}

func (c VerifyCall) Method() string {
	if c.Clear {
		return protocol.MethodVerifyClear
	}
	return protocol.MethodVerify
}

// present reports whether every value was supplied.
func present(values ...*string) bool {
	for _, v := range values {
		if v == nil {
			return false
		}
	}
	return true
}

// validOrNil treats a malformed key id as absent.
func validOrNil(id *string) *string {
	if id != nil && !keyid.Valid(*id) {
		return nil
	}
	return id
}

// resolved wraps keyid.CheckProvided for use with present.
func resolved(id *string, defaults []string) *string {
	if k, ok := keyid.CheckProvided(id, defaults); ok {
		return &k
	}
	return nil
}

// Parse validates req and builds its call. On failure it returns a nil call
// and the message for errorStr. defaults holds the preferred key ids.
func Parse(req protocol.Request, defaults []string) (Call, string) {
	switch req.Method {
	case protocol.MethodEncrypt:
		if !present(req.RawText, req.KeyIDs, req.AlwaysTrust) {
			return nil, ErrStrEncryptArgs
		}
		at := *req.AlwaysTrust
		if at != "true" && at != "false" {
			return nil, ErrStrAlwaysTrust
		}
		sign := ""
		if req.Sign != nil && keyid.Valid(*req.Sign) {
			sign = *req.Sign
		}
		return EncryptCall{
			Text:         *req.RawText,
			TargetKeyIDs: keyid.ParseCSVList(req.KeyIDs),
			HiddenKeyIDs: keyid.ParseCSVList(req.HiddenKeyIDs),
			AlwaysTrust:  at == "true",
			SigningKey:   sign,
		}, ""

	case protocol.MethodDecrypt:
		if !present(req.CipherText) {
			return nil, ErrStrDecryptArgs
		}
		return DecryptCall{CipherText: *req.CipherText}, ""

	case protocol.MethodSign, protocol.MethodClearSign:
		key := resolved(req.KeyID, defaults)
		if !present(req.RawText, key) {
			return nil, ErrStrSignArgs
		}
		return SignCall{Text: *req.RawText, KeyID: *key, ClearSign: req.Method == protocol.MethodClearSign}, ""

	case protocol.MethodVerify:
		if !present(req.SignedText, req.Signature) {
			return nil, ErrStrVerifyArgs
		}
		return VerifyCall{Text: *req.SignedText, Signature: *req.Signature}, ""

	case protocol.MethodVerifyClear:
		if !present(req.ClearSigned) {
			return nil, ErrStrVerifyClearArgs
		}
		return VerifyCall{Text: *req.ClearSigned, Clear: true}, ""

	case protocol.MethodGetKey:
		key := validOrNil(req.KeyID)
		if !present(key, req.Keyserver) {
			return nil, ErrStrGetKeyArgs
		}
		return GetKeyCall{KeyID: *key, Keyserver: *req.Keyserver}, ""

	case protocol.MethodGetUids:
		key := resolved(req.KeyID, defaults)
		if !present(key) {
			return nil, ErrStrGetUidsArgs
		}
		return GetUidsCall{KeyID: *key}, ""

	case protocol.MethodGetVersion:
		return GetVersionCall{}, ""

	case protocol.MethodGetFingerprint:
		key := resolved(req.KeyID, defaults)
		if !present(key) {
			return nil, ErrStrKeyIDArgs
		}
		return GetFingerprintCall{KeyID: *key}, ""

	case protocol.MethodGetTrust:
		key := validOrNil(req.KeyID)
		if !present(key) {
			return nil, ErrStrKeyIDArgs
		}
		return GetTrustCall{KeyID: *key}, ""

	case protocol.MethodSignUid:
		key := resolved(req.KeyID, defaults)
		if !present(key, req.UID, req.Level) {
			return nil, ErrStrSignUidArgs
		}
		return SignUidCall{KeyID: *key, UID: *req.UID, Level: *req.Level}, ""
	}
	return nil, ErrStrUnsupported
}

// Invoke runs call against engine.
func Invoke(ctx context.Context, engine capability.Capability, call Call) (capability.Result, error) {
	switch c := call.(type) {
	case EncryptCall:
		return engine.Encrypt(ctx, c.Text, c.TargetKeyIDs, c.HiddenKeyIDs, c.AlwaysTrust, c.SigningKey)
	case DecryptCall:
		return engine.Decrypt(ctx, c.CipherText)
	case SignCall:
		return engine.Sign(ctx, c.Text, c.KeyID, c.ClearSign)
	case VerifyCall:
		return engine.Verify(ctx, c.Text, c.Signature)
	case GetKeyCall:
		return engine.GetKey(ctx, c.KeyID, c.Keyserver)
	case GetUidsCall:
		return engine.GetUids(ctx, c.KeyID)
	case GetVersionCall:
		return engine.GetVersion(ctx)
	case GetFingerprintCall:
		return engine.GetFingerprint(ctx, c.KeyID)
	case GetTrustCall:
		return engine.GetTrust(ctx, c.KeyID)
	case SignUidCall:
		return engine.SignUid(ctx, c.KeyID, c.UID, c.Level)
	}
	return nil, fmt.Errorf("unhandled call type %T", call)
}
