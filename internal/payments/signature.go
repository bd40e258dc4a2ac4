package payments

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// IntegritySignature is hex(SHA256(reference + amount + currency + secret)).
func IntegritySignature(reference string, amountCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}

// WebhookChecksum is hex(SHA256(rawBody + timestamp + secret)).
func WebhookChecksum(rawBody []byte, timestamp, secret string) string {
	h := sha256.New()
	h.Write(rawBody)
	h.Write([]byte(timestamp))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookChecksum compares the supplied hex checksum in constant time. Missing inputs and
// malformed hex are rejected.
func VerifyWebhookChecksum(rawBody []byte, signature, timestamp, secret string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	timestamp = strings.TrimSpace(timestamp)
	if signature == "" || timestamp == "" || secret == "" || len(rawBody) == 0 {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	expected, _ := hex.DecodeString(WebhookChecksum(rawBody, timestamp, secret))
	return subtle.ConstantTimeCompare(provided, expected) == 1
}
