package webhook

import (
	"fmt"
	"strconv"
	"strings"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// DefaultMaxBodySize bounds one pushed update.
const DefaultMaxBodySize = 1 << 20

// Config holds webhook receiver configuration.
type Config struct {
	Listen string
	// Path is the URL path Telegram posts to, e.g. "/telegram".
	Path string
	// Secret must match SecretHeader on every push.
	Secret      string
	MaxBodySize int64
}

// ErrorResponse is the JSON body of a rejected push.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ParseSize parses sizes like "1MB", "512KB" or "2048" into bytes. Empty
// means DefaultMaxBodySize.
func ParseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", size)
	}
	return value * multiplier, nil
}
