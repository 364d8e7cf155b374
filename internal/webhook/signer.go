package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature headers carried on every delivery
const (
	SignatureHeader = "X-Frontline-Signature"
	TimestampHeader = "X-Frontline-Timestamp"
	signaturePrefix = "sha256="
)

// Sign computes the hex HMAC-SHA256 of the exact body bytes, formatted as
// "sha256=<hex>" for the signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the received raw body and compares it
// in constant time. A missing or malformed header fails verification.
func Verify(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
