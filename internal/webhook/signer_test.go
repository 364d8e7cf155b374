package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	sig := Sign("secret", []byte(`{"requestId":"esc-1"}`))

	assert.True(t, strings.HasPrefix(sig, "sha256="))
	// hex SHA-256 digest after the prefix
	assert.Len(t, sig, len("sha256=")+64)

	// Deterministic for the same secret and body.
	assert.Equal(t, sig, Sign("secret", []byte(`{"requestId":"esc-1"}`)))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"requestId":"esc-1","answer":"9am to 5pm"}`)
	sig := Sign("secret", body)

	t.Run("round trip", func(t *testing.T) {
		assert.True(t, Verify("secret", body, sig))
	})

	t.Run("mutated body fails", func(t *testing.T) {
		assert.False(t, Verify("secret", []byte(`{"requestId":"esc-2"}`), sig))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		assert.False(t, Verify("other-secret", body, sig))
	})

	t.Run("missing prefix fails", func(t *testing.T) {
		assert.False(t, Verify("secret", body, strings.TrimPrefix(sig, "sha256=")))
	})

	t.Run("empty header fails", func(t *testing.T) {
		assert.False(t, Verify("secret", body, ""))
	})
}
