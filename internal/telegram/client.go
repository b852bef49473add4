package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBase        = "https://api.telegram.org"
	DefaultPollTimeout    = 30 * time.Second
	DefaultRequestTimeout = 15 * time.Second

	// MaxMessageLen is the Bot API limit for one text message.
	MaxMessageLen = 4096

	maxResponseBytes = 8 << 20
)

// ErrUnauthorized means the token was rejected. Retrying cannot help.
var ErrUnauthorized = errors.New("telegram token rejected")

// Config configures the Bot API client.
type Config struct {
	Token          string
	APIBase        string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	DropPending    bool
}

// Client is a minimal Bot API client over HTTPS.
type Client struct {
	cfg        Config
	http       *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if httpClient == nil {
		// Per-call deadlines come from contexts; a client-wide timeout
		// would cut long polls short.
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger, retryDelay: time.Second}
}

// GetMe checks the token and returns the bot account.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", struct{}{}, &me, c.cfg.RequestTimeout)
	return me, err
}

// GetUpdates long-polls for updates starting at offset. timeout 0 returns
// immediately.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	var updates []Update
	err := c.call(ctx, "getUpdates", req, &updates, timeout+c.cfg.RequestTimeout)
	return updates, err
}

// Send delivers one text message. Callers keep text within MaxMessageLen.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	var sent Message
	return c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, &sent, c.cfg.RequestTimeout)
}

// SetWebhook switches delivery to HTTPS pushes at hookURL. Telegram echoes
// secret in the X-Telegram-Bot-Api-Secret-Token header of every push.
func (c *Client) SetWebhook(ctx context.Context, hookURL, secret string) error {
	req := setWebhookRequest{
		URL:                hookURL,
		SecretToken:        secret,
		AllowedUpdates:     []string{"message"},
		DropPendingUpdates: c.cfg.DropPending,
	}
	return c.call(ctx, "setWebhook", req, nil, c.cfg.RequestTimeout)
}

// DeleteWebhook switches delivery back to getUpdates. Polling fails with
// 409 while a webhook is registered.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", deleteWebhookRequest{}, nil, c.cfg.RequestTimeout)
}

func (c *Client) call(ctx context.Context, method string, params, out any, timeout time.Duration) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.cfg.APIBase + "/bot" + c.cfg.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the token; never let it reach the logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope apiResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s response (http %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if apiErr.Code == http.StatusUnauthorized || (apiErr.Code == http.StatusNotFound && method == "getMe") {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
