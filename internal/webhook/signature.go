package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	HeaderSignature = "X-Paysandbox-Signature"
	HeaderEvent     = "X-Paysandbox-Event"
	HeaderDelivery  = "X-Paysandbox-Delivery"
	HeaderTimestamp = "X-Paysandbox-Timestamp"

	signaturePrefix = "sha256="
	secretPrefix    = "whsec_"
)

// Sign returns the signature header value for payload: "sha256=" followed by
// the hex HMAC-SHA256 of the raw bytes.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the raw payload and compares it in
// constant time.
func Verify(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
