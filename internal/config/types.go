package config

import "time"

// Config represents the complete claudegram configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Access      AccessConfig      `yaml:"access"`
	Tool        ToolConfig        `yaml:"tool"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	VCS         VCSConfig         `yaml:"vcs"`
	VersionFile VersionFileConfig `yaml:"version_file"`
	State       StateConfig       `yaml:"state"`
	API         APIConfig         `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	// RestartBackoff is the pause before the transport loop is restarted after a fatal error.
	RestartBackoff time.Duration `yaml:"restart_backoff"`
}

// TelegramConfig defines the Bot API transport.
type TelegramConfig struct {
	Token          string        `yaml:"token"`
	APIBase        string        `yaml:"api_base"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DropPending skips updates that arrived while the bot was offline.
	DropPending *bool         `yaml:"drop_pending,omitempty"`
	Webhook     WebhookConfig `yaml:"webhook,omitempty"`
}

// WebhookConfig switches delivery from long polling to HTTPS pushes.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
	// PublicURL is what Telegram posts to; a TLS proxy in front forwards to Listen.
	PublicURL   string `yaml:"public_url"`
	Secret      string `yaml:"secret"`
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// AccessConfig is the sender allow-list.
type AccessConfig struct {
	AllowedUsers []int64 `yaml:"allowed_users"`
}

// ToolConfig describes the external coding-assistant invocation.
type ToolConfig struct {
	Command           string        `yaml:"command"`
	Args              []string      `yaml:"args"`
	Workdir           string        `yaml:"workdir"`
	PromptDir         string        `yaml:"prompt_dir,omitempty"`
	SystemPrompt      string        `yaml:"system_prompt,omitempty"`
	SystemPromptFile  string        `yaml:"system_prompt_file,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	KillGrace         time.Duration `yaml:"kill_grace"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ContextTurns      int           `yaml:"context_turns"`
}

// DeliveryConfig bounds outbound chat messages.
type DeliveryConfig struct {
	MaxMessageLen int `yaml:"max_message_len"`
}

// VCSConfig drives the status and revert commands.
type VCSConfig struct {
	Command  string        `yaml:"command"`
	LogCount int           `yaml:"log_count"`
	Timeout  time.Duration `yaml:"timeout"`
	Remote   string        `yaml:"remote,omitempty"`
}

// VersionFileConfig points at the versioned configuration artifact.
type VersionFileConfig struct {
	Path  string `yaml:"path"`
	Field string `yaml:"field"`
}

// StateConfig defines where the job journal and PID lock live.
type StateConfig struct {
	Path string `yaml:"path"`
	// Retention bounds how long finished jobs stay in the journal.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// APIConfig defines the operator HTTP API.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with the values the bot ships with.
func Defaults() *Config {
	dropPending := true
	return &Config{
		Service: ServiceConfig{
			Name:           "claudegram",
			LogLevel:       "info",
			RestartBackoff: 5 * time.Second,
		},
		Telegram: TelegramConfig{
			APIBase:        "https://api.telegram.org",
			PollTimeout:    30 * time.Second,
			RequestTimeout: 15 * time.Second,
			DropPending:    &dropPending,
			Webhook: WebhookConfig{
				Listen: "127.0.0.1:8443",
				Path:   "/telegram",
			},
		},
		Tool: ToolConfig{
			Command:           "claude",
			Args:              []string{"-p", "--output-format", "text", "--dangerously-skip-permissions"},
			Workdir:           ".",
			Timeout:           600 * time.Second,
			KillGrace:         5 * time.Second,
			HeartbeatInterval: 120 * time.Second,
			ContextTurns:      10,
			SystemPrompt:      DefaultSystemPrompt,
		},
		Delivery: DeliveryConfig{
			MaxMessageLen: 4000,
		},
		VCS: VCSConfig{
			Command:  "git",
			LogCount: 5,
			Timeout:  2 * time.Minute,
		},
		VersionFile: VersionFileConfig{
			Path:  "pubspec.yaml",
			Field: "version",
		},
		State: StateConfig{
			Path:          "./data/claudegram.db",
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}

// DropPendingUpdates reports whether backlog updates are skipped on start.
func (t TelegramConfig) DropPendingUpdates() bool {
	return t.DropPending == nil || *t.DropPending
}
