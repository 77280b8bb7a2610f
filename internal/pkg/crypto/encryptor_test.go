package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := enc.Encrypt(`{"password":"hunter2"}`)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	again, err := enc.Encrypt(`{"password":"hunter2"}`)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"password":"hunter2"}`, plain)
}

func TestEncryptor_Decrypt_Errors(t *testing.T) {
	enc, err := NewEncryptor("key-a")
	require.NoError(t, err)
	other, err := NewEncryptor("key-b")
	require.NoError(t, err)

	sealed, err := enc.Encrypt("secret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		enc   *Encryptor
	}{
		{name: "wrong key", input: sealed, enc: other},
		{name: "not base64", input: "%%%", enc: enc},
		{name: "too short", input: "AAAA", enc: enc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc.Decrypt(tt.input)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestNewEncryptor_RequiresKey(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)
}
