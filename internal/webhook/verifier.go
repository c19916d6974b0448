package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrInvalidSignature means the HMAC over the raw body did not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrBadPayload means the signature matched but the body is not a
	// well-formed event.
	ErrBadPayload = errors.New("malformed webhook payload")
)

// Verifier checks inbound webhook signatures. Verification runs over the raw
// bytes before any parsing, so the JSON decoder never sees unauthenticated
// input.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify computes HMAC-SHA256 over body and compares it in constant time to
// the hex-encoded signature. Mismatches fail closed.
func (v *Verifier) Verify(body []byte, signature string) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body. Used by tests and by callers
// that need to produce outbound signatures.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
