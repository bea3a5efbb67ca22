// Package capability defines the narrow interface the event processor uses to
// reach the cryptographic engine, the result shapes it returns, and a GnuPG
// backed implementation.
package capability

import (
	"context"
	"maps"
)

//go:generate mockgen -destination=mocks/mock_capability.go -package=mocks github.com/mattjoyce/gpgbridge/internal/capability Capability

// Capability is the privileged cryptographic engine. Each call returns a
// Result whose fields are merged into the page response, or an error when the
// call itself could not complete.
type Capability interface {
	Encrypt(ctx context.Context, text string, targetKeyIDs, hiddenKeyIDs []string, alwaysTrust bool, signingKey string) (Result, error)
	Decrypt(ctx context.Context, cipherText string) (Result, error)
	Sign(ctx context.Context, text, keyID string, clearSign bool) (Result, error)
	// Verify checks a detached signature. An empty signature means text is
	// clear-signed.
	Verify(ctx context.Context, text, signature string) (Result, error)
	GetKey(ctx context.Context, keyID, keyserver string) (Result, error)
	GetUids(ctx context.Context, keyID string) (Result, error)
	GetVersion(ctx context.Context) (Result, error)
	GetFingerprint(ctx context.Context, keyID string) (Result, error)
	GetTrust(ctx context.Context, keyID string) (Result, error)
	SignUid(ctx context.Context, keyID, uid, level string) (Result, error)
	SetConfigValue(ctx context.Context, name, value string) (Result, error)
}

// Result is anything the capability returns.
type Result interface {
	Fields() map[string]any
}

// Status is the error indicator every result carries.
type Status struct {
	IsError  bool   `json:"isError"`
	ErrorStr string `json:"errorStr,omitempty"`
}

// Fail marks the result as failed with msg.
func (s *Status) Fail(msg string) {
	s.IsError = true
	s.ErrorStr = msg
}

// Failed reports whether the result carries an error.
func (s Status) Failed() bool { return s.IsError }

func (s Status) fields(n int) map[string]any {
	m := make(map[string]any, n+2)
	m["isError"] = s.IsError
	if s.IsError {
		m["errorStr"] = s.ErrorStr
	}
	return m
}

// StringResult carries a single string, e.g. version output or a signature.
type StringResult struct {
	Status
	RetString string `json:"retstring"`
}

func (r StringResult) Fields() map[string]any {
	m := r.fields(1)
	m["retstring"] = r.RetString
	return m
}

// BoolResult carries a single boolean.
type BoolResult struct {
	Status
	RetBool bool `json:"retbool"`
}

func (r BoolResult) Fields() map[string]any {
	m := r.fields(1)
	m["retbool"] = r.RetBool
	return m
}

// SignerResult is returned by signature verification.
type SignerResult struct {
	Status
	Signer     string `json:"signer"`
	TrustLevel string `json:"trustLevel"`
	Debug      string `json:"debug"`
}

func (r SignerResult) Fields() map[string]any {
	m := r.fields(3)
	m["signer"] = r.Signer
	m["trustLevel"] = r.TrustLevel
	m["debug"] = r.Debug
	return m
}

// EncryptResult is returned by encryption.
type EncryptResult struct {
	Status
	CipherText string `json:"cipherText"`
	Debug      string `json:"debug"`
}

func (r EncryptResult) Fields() map[string]any {
	m := r.fields(2)
	m["cipherText"] = r.CipherText
	m["debug"] = r.Debug
	return m
}

// DecryptResult is returned by decryption. Signer and TrustLevel are set when
// the message was also signed.
type DecryptResult struct {
	Status
	Data       string `json:"data"`
	Signer     string `json:"signer"`
	TrustLevel string `json:"trustLevel"`
	Debug      string `json:"debug"`
}

func (r DecryptResult) Fields() map[string]any {
	m := r.fields(4)
	m["data"] = r.Data
	m["signer"] = r.Signer
	m["trustLevel"] = r.TrustLevel
	m["debug"] = r.Debug
	return m
}

// UidsResult lists the user ids on a key.
type UidsResult struct {
	Status
	Uids []string `json:"uids"`
}

func (r UidsResult) Fields() map[string]any {
	m := r.fields(1)
	uids := r.Uids
	if uids == nil {
		uids = []string{}
	}
	m["uids"] = uids
	return m
}

// Values is a free-form result. Its keys are merged verbatim.
type Values map[string]any

func (v Values) Fields() map[string]any {
	return maps.Clone(map[string]any(v))
}

// Succeeded reports whether r carries an explicit isError:false.
func Succeeded(r Result) bool {
	if r == nil {
		return false
	}
	v, ok := r.Fields()["isError"].(bool)
	return ok && !v
}

// Accepted reports whether a SetConfigValue result accepted the directive.
func Accepted(r Result) bool {
	if r == nil {
		return false
	}
	f := r.Fields()
	if isErr, _ := f["isError"].(bool); isErr {
		return false
	}
	ok, _ := f["retbool"].(bool)
	return ok
}
