// Package doctor checks a loaded claudegram configuration against the host:
// the tool binary, its working directory, the state location and the
// surfaces that would otherwise fail only at runtime.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/claudegram/internal/config"
	"github.com/mattjoyce/claudegram/internal/storage"
	"github.com/mattjoyce/claudegram/internal/webhook"
)

const minAPIKeyLen = 16

var botTokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]{20,}$`)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a configuration against the local environment.
type Doctor struct {
	cfg        *config.Config
	lookPath   func(string) (string, error)
	checkLocal func(string) error
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, checkLocal: storage.CheckLocal}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateTelegram(r)
	d.validateWebhook(r)
	d.validateAccess(r)
	d.validateTool(r)
	d.validateState(r)
	d.validateAPI(r)
	d.warnVCS(r)
	d.warnVersionFile(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateTelegram(r *Result) {
	token := d.cfg.Telegram.Token
	switch {
	case token == "":
		d.addError(r, "telegram", "telegram.token", "bot token is required")
	case !botTokenPattern.MatchString(token):
		// Never echo the token itself.
		d.addWarning(r, "telegram", "telegram.token", "token does not look like a Bot API token (<id>:<secret>)")
	}
}

func (d *Doctor) validateWebhook(r *Result) {
	wh := d.cfg.Telegram.Webhook
	if !wh.Enabled {
		return
	}
	if !strings.HasPrefix(wh.PublicURL, "https://") {
		d.addError(r, "webhook", "telegram.webhook.public_url", "Telegram only delivers webhooks to https URLs")
	}
	if !webhook.ValidSecret(wh.Secret) {
		d.addError(r, "webhook", "telegram.webhook.secret", "secret must be 1-256 characters of A-Z, a-z, 0-9, _ or -")
	}
	if wh.MaxBodySize != "" {
		if _, err := webhook.ParseSize(wh.MaxBodySize); err != nil {
			d.addError(r, "webhook", "telegram.webhook.max_body_size", err.Error())
		}
	}
	if _, _, err := net.SplitHostPort(wh.Listen); err != nil {
		d.addError(r, "webhook", "telegram.webhook.listen", fmt.Sprintf("invalid listen address %q: %v", wh.Listen, err))
	}
	if d.cfg.API.Enabled && wh.Listen == d.cfg.API.Listen {
		d.addError(r, "webhook", "telegram.webhook.listen", "webhook and API cannot share a listen address")
	}
}

func (d *Doctor) validateAccess(r *Result) {
	if len(d.cfg.Access.AllowedUsers) == 0 {
		d.addError(r, "access", "access.allowed_users", "allow-list is empty; every message would be denied")
		return
	}
	seen := make(map[int64]bool, len(d.cfg.Access.AllowedUsers))
	for i, id := range d.cfg.Access.AllowedUsers {
		field := fmt.Sprintf("access.allowed_users[%d]", i)
		if id <= 0 {
			d.addError(r, "access", field, fmt.Sprintf("user id %d is not a valid Telegram user id", id))
		}
		if seen[id] {
			d.addWarning(r, "access", field, fmt.Sprintf("user id %d listed more than once", id))
		}
		seen[id] = true
	}
}

func (d *Doctor) validateTool(r *Result) {
	tool := d.cfg.Tool

	if _, err := d.lookPath(tool.Command); err != nil {
		d.addWarning(r, "tool", "tool.command", fmt.Sprintf("%q not found on PATH; every job would fail to spawn", tool.Command))
	}

	if info, err := os.Stat(tool.Workdir); err != nil {
		d.addError(r, "tool", "tool.workdir", fmt.Sprintf("workdir %q: %v", tool.Workdir, err))
	} else if !info.IsDir() {
		d.addError(r, "tool", "tool.workdir", fmt.Sprintf("workdir %q is not a directory", tool.Workdir))
	}

	if tool.PromptDir != "" {
		if info, err := os.Stat(tool.PromptDir); err != nil || !info.IsDir() {
			d.addError(r, "tool", "tool.prompt_dir", fmt.Sprintf("prompt_dir %q is not an existing directory", tool.PromptDir))
		}
	}

	if tool.HeartbeatInterval >= tool.Timeout {
		d.addWarning(r, "tool", "tool.heartbeat_interval",
			fmt.Sprintf("heartbeat interval %s is not shorter than timeout %s; no heartbeat will ever be sent", tool.HeartbeatInterval, tool.Timeout))
	}
	if tool.KillGrace > tool.Timeout {
		d.addWarning(r, "tool", "tool.kill_grace",
			fmt.Sprintf("kill grace %s is longer than the timeout %s", tool.KillGrace, tool.Timeout))
	}
}

func (d *Doctor) validateState(r *Result) {
	path := d.cfg.State.Path
	if path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	if err := d.checkLocal(path); err != nil {
		if errors.Is(err, storage.ErrNetworkFilesystem) {
			d.addWarning(r, "state", "state.path", err.Error())
			return
		}
		d.addWarning(r, "state", "state.path", fmt.Sprintf("could not inspect filesystem: %v", err))
	}
}

func (d *Doctor) validateAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled {
		return
	}
	if api.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if api.Auth.APIKey == "" {
		d.addError(r, "api", "api.auth.api_key", "API enabled but no api_key configured")
	} else if len(api.Auth.APIKey) < minAPIKeyLen {
		d.addWarning(r, "api", "api.auth.api_key", fmt.Sprintf("api_key is shorter than %d characters", minAPIKeyLen))
	}

	host, _, err := net.SplitHostPort(api.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", api.Listen, err))
		return
	}
	if !isLoopback(host) {
		d.addWarning(r, "api", "api.listen", fmt.Sprintf("API listens on %q, reachable beyond localhost", api.Listen))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) warnVCS(r *Result) {
	if _, err := d.lookPath(d.cfg.VCS.Command); err != nil {
		d.addWarning(r, "vcs", "vcs.command", fmt.Sprintf("%q not found on PATH; /status and /revert will fail", d.cfg.VCS.Command))
		return
	}
	if _, err := os.Stat(filepath.Join(d.cfg.Tool.Workdir, ".git")); err != nil {
		d.addWarning(r, "vcs", "tool.workdir", fmt.Sprintf("%q is not the root of a git checkout", d.cfg.Tool.Workdir))
	}
}

func (d *Doctor) warnVersionFile(r *Result) {
	path := d.cfg.VersionFilePath()
	if _, err := os.Stat(path); err != nil {
		d.addWarning(r, "version_file", "version_file.path", fmt.Sprintf("%s not found; /version will report it missing", path))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
