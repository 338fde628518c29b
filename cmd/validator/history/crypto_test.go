package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewKeyCipher_KeyValidation(t *testing.T) {
	tests := []struct {
		name   string
		hexKey string
	}{
		{"not hex", "zz"},
		{"too short", "00010203"},
		{"too long", testHexKey + "ff"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newKeyCipher(tt.hexKey)
			assert.Error(t, err)
		})
	}
}

func TestKeyCipher_RoundTrip(t *testing.T) {
	c, err := newKeyCipher(testHexKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"gazelle-api-key-123", "", strings.Repeat("x", 4096)} {
		encrypted, err := c.encrypt(plaintext)
		require.NoError(t, err)
		if plaintext != "" {
			assert.NotContains(t, encrypted, plaintext)
		}

		decrypted, err := c.decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestKeyCipher_NoncesDiffer(t *testing.T) {
	c, err := newKeyCipher(testHexKey)
	require.NoError(t, err)

	a, err := c.encrypt("same key")
	require.NoError(t, err)
	b, err := c.encrypt("same key")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestKeyCipher_DecryptRejectsBadInput(t *testing.T) {
	c, err := newKeyCipher(testHexKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!"},
		{"truncated", "YWJj"},
		{"tampered", func() string {
			s, _ := c.encrypt("secret")
			return s[:len(s)-4] + "AAA="
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.decrypt(tt.encoded)
			assert.Error(t, err)
		})
	}
}

func TestKeyCipher_WrongKeyFailsToDecrypt(t *testing.T) {
	a, err := newKeyCipher(testHexKey)
	require.NoError(t, err)
	b, err := newKeyCipher(strings.Repeat("ff", 32))
	require.NoError(t, err)

	encrypted, err := a.encrypt("secret")
	require.NoError(t, err)

	_, err = b.decrypt(encrypted)
	assert.Error(t, err)
}
