package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	body := []byte(`{"order":42}`)

	tests := []struct {
		name      string
		algorithm string
		signature func(v *SignatureVerifier) string
		want      bool
	}{
		{"sha256", "sha256", func(v *SignatureVerifier) string { return v.Sign(body) }, true},
		{"sha256 prefixed", "sha256", func(v *SignatureVerifier) string { return "sha256=" + v.Sign(body) }, true},
		{"sha1", "sha1", func(v *SignatureVerifier) string { return v.Sign(body) }, true},
		{"default algorithm", "", func(v *SignatureVerifier) string { return v.Sign(body) }, true},
		{"empty", "sha256", func(*SignatureVerifier) string { return "" }, false},
		{"wrong secret", "sha256", func(*SignatureVerifier) string {
			return NewSignatureVerifier("sha256", "other").Sign(body)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewSignatureVerifier(tt.algorithm, "s3cr3t")
			assert.Equal(t, tt.want, v.Verify(body, tt.signature(v)))
		})
	}

	v := NewSignatureVerifier("sha256", "s3cr3t")
	assert.False(t, v.Verify([]byte(`{"order":43}`), v.Sign(body)))
}
