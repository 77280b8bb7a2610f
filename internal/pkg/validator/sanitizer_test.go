package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  nightly   report ", want: "nightly report"},
		{in: "<b>bold</b> name", want: "bold name"},
		{in: "nul\x00byte", want: "nulbyte"},
		{in: "plain", want: "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "line one\nline two", SanitizeText("  <p>line one\nline two</p> "))
}

func TestSanitizeOptional(t *testing.T) {
	assert.Nil(t, SanitizeOptional(nil, SanitizeName))

	in := "  a  b "
	out := SanitizeOptional(&in, SanitizeName)
	if assert.NotNil(t, out) {
		assert.Equal(t, "a b", *out)
	}
	assert.Equal(t, "  a  b ", in)
}
