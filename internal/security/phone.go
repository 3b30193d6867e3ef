// Package security holds the boundary checks for the USSD channel: phone
// number validation and hashing, session-id validation, and gateway request
// signatures. The core packages stay free of these concerns.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Nigerian mobile number shapes accepted from the gateway.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^234[789][01]\d{8}$`), // +234 international
	regexp.MustCompile(`^0[789][01]\d{8}$`),   // 0 prefix
	regexp.MustCompile(`^[789][01]\d{8}$`),    // bare
}

var nonDigits = regexp.MustCompile(`\D`)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidPhoneNumber reports whether the string is a recognizable NG mobile
// number in any accepted format.
func ValidPhoneNumber(phone string) bool {
	if phone == "" {
		return false
	}
	clean := nonDigits.ReplaceAllString(phone, "")
	for _, p := range phonePatterns {
		if p.MatchString(clean) {
			return true
		}
	}
	return false
}

// NormalizePhoneNumber converts any accepted format to +234XXXXXXXXXX.
// Unrecognized input is returned unchanged.
func NormalizePhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	clean := nonDigits.ReplaceAllString(phone, "")
	switch {
	case strings.HasPrefix(clean, "234"):
		return "+" + clean
	case strings.HasPrefix(clean, "0"):
		return "+234" + clean[1:]
	case len(clean) == 10:
		return "+234" + clean
	}
	return phone
}

// HashPhone derives the one-way identifier callers are stored under.
// The salt comes from configuration and must be stable across restarts.
func HashPhone(phone, salt string) string {
	sum := sha256.Sum256([]byte(phone + salt))
	return hex.EncodeToString(sum[:])
}

// ValidSessionID reports whether a gateway session id is well formed.
func ValidSessionID(id string) bool {
	return id != "" && sessionIDPattern.MatchString(id)
}

// Sign computes the hex HMAC-SHA256 of a request body under the gateway
// secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature verifies an HMAC-SHA256 request signature in constant time.
func ValidSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
