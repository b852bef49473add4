package webhook

import (
	"crypto/subtle"
	"regexp"
)

// Telegram accepts 1-256 characters from this set for secret_token.
var secretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// ValidSecret reports whether Telegram would accept s as a secret_token.
func ValidSecret(s string) bool {
	return secretPattern.MatchString(s)
}

// secretMatches compares in constant time. An empty configured secret
// matches nothing.
func secretMatches(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
