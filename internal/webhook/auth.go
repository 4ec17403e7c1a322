// Package webhook exposes the inbound approval endpoint. Every request is
// authenticated with a shared-secret HMAC before it can touch proposal state.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ErrAuthenticationFailed is returned for any authentication problem. The
// caller learns only that authentication failed, never which check tripped.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Verifier checks webhook request authenticity: a signature over the exact
// raw body bound to a timestamp inside the replay window.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier constructs a Verifier for the shared secret.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks the hex signature and the timestamp freshness. Both checks
// always run; a stale timestamp is rejected even when the signature over it
// is valid, and vice versa.
func (v *Verifier) Verify(timestamp string, body []byte, signature string) error {
	sigOK := v.signatureValid(timestamp, body, signature)
	tsOK := v.timestampFresh(timestamp)

	if !sigOK || !tsOK {
		return ErrAuthenticationFailed
	}
	return nil
}

// signatureValid recomputes HMAC-SHA256 over timestamp||body and compares in
// constant time.
func (v *Verifier) signatureValid(timestamp string, body []byte, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// timestampFresh accepts unix-second timestamps within the tolerance window
// on either side of local time.
func (v *Verifier) timestampFresh(timestamp string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	return skew <= v.tolerance
}
