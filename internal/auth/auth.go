package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// AllowList is the set of chat user IDs the bot obeys.
type AllowList struct {
	ids map[int64]struct{}
}

func NewAllowList(ids []int64) *AllowList {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &AllowList{ids: m}
}

// Allowed reports whether id may use the bot. An empty list allows nobody.
func (a *AllowList) Allowed(id int64) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[id]
	return ok
}

func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ids)
}

// ExtractBearerToken reads the API key from an Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

// KeyMatches compares a presented key with the configured one in constant
// time. An empty configured key never matches.
func KeyMatches(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	if len(presented) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
