package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the configuration file.
// A directory may be given, in which case config.yaml inside it is used.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)
	if err := resolveSystemPrompt(cfg, filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse builds a Config from raw YAML without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	out := applyConfigDefaults(&cfg)
	if err := validate(out); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return out, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $CLAUDEGRAM_CONFIG, ~/.config/claudegram/config.yaml,
// /etc/claudegram/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("CLAUDEGRAM_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "claudegram", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/claudegram/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $CLAUDEGRAM_CONFIG, ~/.config/claudegram/config.yaml, /etc/claudegram/config.yaml, ./config.yaml)")
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// applyConfigDefaults fills zero values from Defaults().
func applyConfigDefaults(cfg *Config) *Config {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.RestartBackoff == 0 {
		cfg.Service.RestartBackoff = d.Service.RestartBackoff
	}

	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = d.Telegram.APIBase
	}
	cfg.Telegram.APIBase = strings.TrimRight(cfg.Telegram.APIBase, "/")
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = d.Telegram.PollTimeout
	}
	if cfg.Telegram.RequestTimeout == 0 {
		cfg.Telegram.RequestTimeout = d.Telegram.RequestTimeout
	}
	if cfg.Telegram.DropPending == nil {
		cfg.Telegram.DropPending = d.Telegram.DropPending
	}
	if cfg.Telegram.Webhook.Listen == "" {
		cfg.Telegram.Webhook.Listen = d.Telegram.Webhook.Listen
	}
	if cfg.Telegram.Webhook.Path == "" {
		cfg.Telegram.Webhook.Path = d.Telegram.Webhook.Path
	}

	if cfg.Tool.Command == "" {
		cfg.Tool.Command = d.Tool.Command
		if len(cfg.Tool.Args) == 0 {
			cfg.Tool.Args = d.Tool.Args
		}
	}
	if cfg.Tool.Workdir == "" {
		cfg.Tool.Workdir = d.Tool.Workdir
	}
	if cfg.Tool.Timeout == 0 {
		cfg.Tool.Timeout = d.Tool.Timeout
	}
	if cfg.Tool.KillGrace == 0 {
		cfg.Tool.KillGrace = d.Tool.KillGrace
	}
	if cfg.Tool.HeartbeatInterval == 0 {
		cfg.Tool.HeartbeatInterval = d.Tool.HeartbeatInterval
	}
	if cfg.Tool.ContextTurns == 0 {
		cfg.Tool.ContextTurns = d.Tool.ContextTurns
	}
	if cfg.Tool.SystemPrompt == "" && cfg.Tool.SystemPromptFile == "" {
		cfg.Tool.SystemPrompt = d.Tool.SystemPrompt
	}

	if cfg.Delivery.MaxMessageLen == 0 {
		cfg.Delivery.MaxMessageLen = d.Delivery.MaxMessageLen
	}

	if cfg.VCS.Command == "" {
		cfg.VCS.Command = d.VCS.Command
	}
	if cfg.VCS.LogCount == 0 {
		cfg.VCS.LogCount = d.VCS.LogCount
	}
	if cfg.VCS.Timeout == 0 {
		cfg.VCS.Timeout = d.VCS.Timeout
	}

	if cfg.VersionFile.Path == "" {
		cfg.VersionFile.Path = d.VersionFile.Path
	}
	if cfg.VersionFile.Field == "" {
		cfg.VersionFile.Field = d.VersionFile.Field
	}

	if cfg.State.Path == "" {
		cfg.State.Path = d.State.Path
	}
	if cfg.State.Retention == 0 {
		cfg.State.Retention = d.State.Retention
	}
	if cfg.State.PruneInterval == 0 {
		cfg.State.PruneInterval = d.State.PruneInterval
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}
	return cfg
}

// resolveSystemPrompt loads tool.system_prompt_file relative to the config directory.
func resolveSystemPrompt(cfg *Config, configDir string) error {
	if cfg.Tool.SystemPromptFile == "" || cfg.Tool.SystemPrompt != "" {
		return nil
	}
	path := cfg.Tool.SystemPromptFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tool.system_prompt_file: %w", err)
	}
	cfg.Tool.SystemPrompt = strings.TrimSpace(string(data))
	return nil
}

// interpolateEnv replaces ${VAR} with its environment value, leaving unknown
// placeholders intact so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// VersionFilePath resolves version_file.path against the tool workdir.
func (c *Config) VersionFilePath() string {
	if filepath.IsAbs(c.VersionFile.Path) {
		return c.VersionFile.Path
	}
	return filepath.Join(c.Tool.Workdir, c.VersionFile.Path)
}

// PIDLockPath places the lock file next to the journal database.
func (c *Config) PIDLockPath() string {
	dir := filepath.Dir(c.State.Path)
	base := filepath.Base(c.State.Path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".pid")
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.RestartBackoff < 0 {
		return fmt.Errorf("service.restart_backoff must not be negative")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if envVarPattern.MatchString(cfg.Telegram.Token) {
		name := envVarPattern.FindStringSubmatch(cfg.Telegram.Token)[1]
		return fmt.Errorf("telegram.token references unset environment variable %s", name)
	}
	if cfg.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("telegram.poll_timeout must be positive")
	}

	if wh := cfg.Telegram.Webhook; wh.Enabled {
		if !strings.HasPrefix(wh.PublicURL, "https://") {
			return fmt.Errorf("telegram.webhook.public_url must be an https URL")
		}
		if wh.Secret == "" || envVarPattern.MatchString(wh.Secret) {
			return fmt.Errorf("telegram.webhook.secret is required when the webhook is enabled")
		}
		if !strings.HasPrefix(wh.Path, "/") {
			return fmt.Errorf("telegram.webhook.path must start with /")
		}
	}

	if len(cfg.Access.AllowedUsers) == 0 {
		return fmt.Errorf("access.allowed_users must list at least one user id")
	}

	if cfg.Tool.Timeout <= 0 {
		return fmt.Errorf("tool.timeout must be positive")
	}
	if cfg.Tool.KillGrace < 0 {
		return fmt.Errorf("tool.kill_grace must not be negative")
	}
	if cfg.Tool.HeartbeatInterval <= 0 {
		return fmt.Errorf("tool.heartbeat_interval must be positive")
	}
	if cfg.Tool.ContextTurns < 0 {
		return fmt.Errorf("tool.context_turns must not be negative")
	}

	if cfg.Delivery.MaxMessageLen <= 0 || cfg.Delivery.MaxMessageLen > 4096 {
		return fmt.Errorf("delivery.max_message_len must be in 1..4096 (got %d)", cfg.Delivery.MaxMessageLen)
	}

	if cfg.VCS.LogCount <= 0 {
		return fmt.Errorf("vcs.log_count must be positive")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.State.Retention < 0 || cfg.State.PruneInterval < 0 {
		return fmt.Errorf("state.retention and state.prune_interval must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if cfg.API.Auth.APIKey == "" {
			return fmt.Errorf("api.auth.api_key is required when api is enabled")
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			name := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)[1]
			return fmt.Errorf("api.auth.api_key references unset environment variable %s", name)
		}
	}
	return nil
}
