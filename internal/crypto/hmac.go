package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrBadSignature is returned by Open when an envelope fails verification.
var ErrBadSignature = errors.New("crypto: bad envelope signature")

// Envelope wraps a payload with an HMAC so the external signer can check it
// came from this service.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// Sealer signs payloads with a shared secret.
type Sealer struct {
	secret []byte
}

// NewSealer returns a Sealer for secret. An empty secret still produces
// envelopes, signed with an empty key.
func NewSealer(secret string) *Sealer {
	return &Sealer{secret: []byte(secret)}
}

// Seal wraps payload in a signed envelope.
func (s *Sealer) Seal(payload []byte) ([]byte, error) {
	return s.SealAt(payload, time.Now().Unix())
}

// SealAt is like Seal but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *Sealer) SealAt(payload []byte, unixTS int64) ([]byte, error) {
	env := Envelope{
		Payload:   json.RawMessage(payload),
		Timestamp: unixTS,
		Signature: s.sign(unixTS, payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("crypto/hmac: marshal envelope: %w", err)
	}
	return b, nil
}

// Open verifies an envelope and returns its payload.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("crypto/hmac: unmarshal envelope: %w", err)
	}
	want := s.sign(env.Timestamp, env.Payload)
	if !hmac.Equal([]byte(want), []byte(env.Signature)) {
		return nil, ErrBadSignature
	}
	return env.Payload, nil
}

func (s *Sealer) sign(unixTS int64, payload []byte) string {
	return hmacSHA256Base64(s.secret, strconv.FormatInt(unixTS, 10)+"."+string(payload))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *Sealer) String() string {
	return "Sealer{secret=****}"
}
