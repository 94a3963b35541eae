package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testKey)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadKeys(t *testing.T) {
	_, err := NewCodec("not-hex")
	assert.Error(t, err)

	_, err = NewCodec("abcd")
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, plaintext := range []string{
		"",
		"hello",
		`{"content-type":"application/json"}`,
		"héllø wörld — ünïcode ✓ 日本語",
		strings.Repeat("x", 64*1024),
	} {
		sealed, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		parts := strings.SplitN(sealed, ":", 3)
		require.Len(t, parts, 3)
		assert.Len(t, parts[0], ivLength*2)
		assert.Len(t, parts[1], tagLength*2)

		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCodec_FreshIVPerRecord(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_Decrypt_InvalidFormat(t *testing.T) {
	c := newTestCodec(t)

	for _, stored := range []string{
		"",
		"no-colons-here",
		"onlyone:part",
		"zz:zz:zz", // not hex
		"1234:" + strings.Repeat("ab", tagLength) + ":dead", // short iv
	} {
		_, err := c.Decrypt(stored)
		assert.ErrorIs(t, err, ErrInvalidFormat, "input %q", stored)
	}
}

func TestCodec_Decrypt_Tampered(t *testing.T) {
	c := newTestCodec(t)

	sealed, err := c.Encrypt("sensitive payload")
	require.NoError(t, err)

	// Flip one hex digit of the ciphertext segment.
	i := strings.LastIndexByte(sealed, ':') + 1
	flip := byte('0')
	if sealed[i] == '0' {
		flip = '1'
	}
	tampered := sealed[:i] + string(flip) + sealed[i+1:]

	_, err = c.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCodec_Decrypt_WrongKey(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := c.Encrypt("payload")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}
