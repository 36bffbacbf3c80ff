// Package signature authenticates webhook deliveries. The messaging
// platform signs the raw request body with HMAC-SHA256 and sends the digest
// as "sha256=<hex>"; verification compares digests in constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const prefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA256 of body under secret, in the
// header format the platform uses.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Valid reports whether header carries the correct signature for body.
// It fails closed: an empty secret, a missing header, or a malformed header
// all reject the request.
func Valid(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
