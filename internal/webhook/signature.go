package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

const (
	DefaultSignatureHeader    = "X-Signature"
	DefaultSignatureAlgorithm = "sha256"
)

// SignatureVerifier checks HMAC signatures of webhook bodies. Signatures are
// hex encoded and may carry an "<algorithm>=" prefix, as GitHub sends them.
type SignatureVerifier struct {
	algorithm string
	secret    string
}

func NewSignatureVerifier(algorithm, secret string) *SignatureVerifier {
	if algorithm == "" {
		algorithm = DefaultSignatureAlgorithm
	}
	return &SignatureVerifier{
		algorithm: strings.ToLower(algorithm),
		secret:    secret,
	}
}

func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), v.algorithm+"=")
	if signature == "" {
		return false
	}
	expected := v.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (v *SignatureVerifier) Sign(payload []byte) string {
	var h hash.Hash

	switch v.algorithm {
	case "sha1":
		h = hmac.New(sha1.New, []byte(v.secret))
	default:
		h = hmac.New(sha256.New, []byte(v.secret))
	}

	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
