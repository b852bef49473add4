package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/claudegram/internal/api"
	"github.com/mattjoyce/claudegram/internal/auth"
	"github.com/mattjoyce/claudegram/internal/bot"
	"github.com/mattjoyce/claudegram/internal/config"
	"github.com/mattjoyce/claudegram/internal/control"
	"github.com/mattjoyce/claudegram/internal/conversation"
	"github.com/mattjoyce/claudegram/internal/doctor"
	"github.com/mattjoyce/claudegram/internal/engine"
	"github.com/mattjoyce/claudegram/internal/events"
	"github.com/mattjoyce/claudegram/internal/journal"
	"github.com/mattjoyce/claudegram/internal/lock"
	"github.com/mattjoyce/claudegram/internal/log"
	"github.com/mattjoyce/claudegram/internal/queue"
	"github.com/mattjoyce/claudegram/internal/retention"
	"github.com/mattjoyce/claudegram/internal/storage"
	"github.com/mattjoyce/claudegram/internal/supervisor"
	"github.com/mattjoyce/claudegram/internal/telegram"
	"github.com/mattjoyce/claudegram/internal/tui/watch"
	"github.com/mattjoyce/claudegram/internal/vcs"
	"github.com/mattjoyce/claudegram/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
)

const (
	eventBufferSize = 256
	historyLimit    = 10
	redacted        = "********"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "config":
		return runConfigNoun(args)
	case "doctor": // alias
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`claudegram - Telegram front end for a command-line coding assistant

Usage:
  claudegram <command> [flags]

Commands:
  start             Run the bot in the foreground (and the API if enabled)
  watch             Terminal monitor for a running bot
  config check      Validate configuration against this host
  config show       Print the resolved configuration (secrets redacted)
  config get PATH   Print one value, e.g. tool.timeout
  version           Show version information
  help              Show this help message

Use 'claudegram <command> --help' for command flags.
`)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: claudegram config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, get")
}

func printStartHelp() {
	fmt.Println("Usage: claudegram start [--config PATH]")
	fmt.Println("Run the bot in the foreground. Stops on SIGINT or SIGTERM.")
}

func printWatchHelp() {
	fmt.Println("Usage: claudegram watch [--api URL] [--api-key KEY]")
	fmt.Println()
	fmt.Println("Live view of the running job, the queue and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api URL        Operator API URL (default: http://127.0.0.1:8080)")
	fmt.Println("  --api-key KEY    API bearer token (or CLAUDEGRAM_API_KEY env var)")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: claudegram config check [--config PATH] [--json] [--strict]")
	fmt.Println("Validate configuration and the host it runs on. --strict fails on warnings.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: claudegram config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with secrets redacted.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: claudegram config get [--config PATH] <dot.path>")
	fmt.Println("Print one configuration value, e.g. tool.timeout. Secrets stay redacted.")
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("claudegram %s (commit %s)\n", info.Version, info.Commit)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{Version: strings.TrimSpace(version), Commit: strings.TrimSpace(gitCommit)}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}
	if info.Commit == "" || info.Commit == "unknown" {
		info.Commit = "unknown"
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					info.Commit = s.Value
				}
			}
		}
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	return info
}

func loadConfigForTool(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	return cfg, configPath, err
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()
	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	cfg = redactSecrets(cfg)

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		printConfigGetHelp()
		return 1
	}

	cfg, _, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := redactSecrets(cfg).GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch v := val.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Println(v)
	}
	return 0
}

// redactSecrets returns a copy with the bot token and API key masked.
func redactSecrets(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Telegram.Token != "" {
		out.Telegram.Token = redacted
	}
	if out.API.Auth.APIKey != "" {
		out.API.Auth.APIKey = redacted
	}
	if out.Telegram.Webhook.Secret != "" {
		out.Telegram.Webhook.Secret = redacted
	}
	return &out
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8080", "Operator API URL")
	apiKey := fs.String("api-key", os.Getenv("CLAUDEGRAM_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or CLAUDEGRAM_API_KEY env var.")
		return 1
	}

	p := tea.NewProgram(watch.New(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("claudegram starting", "version", version, "config", path)

	pidLock, err := lock.Acquire(cfg.PIDLockPath())
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.PIDLockPath(), "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("claudegram stopped with error", "error", err)
		return 1
	}
	logger.Info("claudegram stopped")
	return 0
}

// webhookRegistrar is the part of the Telegram client that switches delivery modes.
type webhookRegistrar interface {
	SetWebhook(ctx context.Context, hookURL, secret string) error
	DeleteWebhook(ctx context.Context) error
}

type updateClient interface {
	poller
	webhookRegistrar
}

// updateSource registers the configured delivery mode with Telegram and
// returns the blocking receive loop for it.
func updateSource(ctx context.Context, cfg *config.Config, tg updateClient, handle telegram.Handler, logger *slog.Logger) (func(context.Context) error, error) {
	wh := cfg.Telegram.Webhook
	if !wh.Enabled {
		// A webhook left over from an earlier run makes getUpdates fail with 409.
		if err := tg.DeleteWebhook(ctx); err != nil {
			return nil, fmt.Errorf("telegram deleteWebhook: %w", err)
		}
		return func(ctx context.Context) error {
			return pollForever(ctx, tg, handle, cfg.Service.RestartBackoff, log.WithComponent("transport"))
		}, nil
	}

	maxBody, err := webhook.ParseSize(wh.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("telegram.webhook.max_body_size: %w", err)
	}
	hookURL := strings.TrimRight(wh.PublicURL, "/") + wh.Path
	if err := tg.SetWebhook(ctx, hookURL, wh.Secret); err != nil {
		return nil, fmt.Errorf("telegram setWebhook: %w", err)
	}
	logger.Info("webhook registered", "url", hookURL, "listen", wh.Listen)

	srv := webhook.New(webhook.Config{
		Listen:      wh.Listen,
		Path:        wh.Path,
		Secret:      wh.Secret,
		MaxBodySize: maxBody,
	}, handle, log.WithComponent("webhook"))
	return srv.Start, nil
}

// serve wires every component and blocks until ctx ends or one of them
// fails for good.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()
	jour := journal.New(db)
	logger.Info("journal opened", "path", cfg.State.Path)

	hub := events.NewHub(eventBufferSize)

	tg := telegram.NewClient(telegram.Config{
		Token:          cfg.Telegram.Token,
		APIBase:        cfg.Telegram.APIBase,
		PollTimeout:    cfg.Telegram.PollTimeout,
		RequestTimeout: cfg.Telegram.RequestTimeout,
		DropPending:    cfg.Telegram.DropPendingUpdates(),
	}, nil, log.WithComponent("telegram"))

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("connected to telegram", "bot", me.Username)

	sup := supervisor.New(supervisor.Config{
		Command:      cfg.Tool.Command,
		Args:         cfg.Tool.Args,
		Workdir:      cfg.Tool.Workdir,
		PromptDir:    cfg.Tool.PromptDir,
		SystemPrompt: cfg.Tool.SystemPrompt,
		Timeout:      cfg.Tool.Timeout,
		KillGrace:    cfg.Tool.KillGrace,
	}, log.WithComponent("supervisor"))

	eng := engine.New(engine.Config{
		HeartbeatInterval: cfg.Tool.HeartbeatInterval,
		MaxMessageLen:     cfg.Delivery.MaxMessageLen,
	}, engine.Deps{
		Runner:        sup,
		Messenger:     tg,
		Conversations: conversation.NewStore(cfg.Tool.ContextTurns),
		Queue:         queue.New(),
		Journal:       jour,
		Events:        hub,
		Logger:        log.WithComponent("engine"),
	})

	git := vcs.New(vcs.Config{
		Command:  cfg.VCS.Command,
		Dir:      cfg.Tool.Workdir,
		LogCount: cfg.VCS.LogCount,
		Timeout:  cfg.VCS.Timeout,
		Remote:   cfg.VCS.Remote,
	}, log.WithComponent("vcs"))

	surface := control.New(control.Config{
		VersionPath:  cfg.VersionFilePath(),
		VersionField: cfg.VersionFile.Field,
		HistoryLimit: historyLimit,
	}, eng, git, jour, log.WithComponent("control"))

	router := bot.NewRouter(auth.NewAllowList(cfg.Access.AllowedUsers), eng, surface, tg, log.WithComponent("bot"))

	pruner := retention.New(jour, cfg.State.Retention, cfg.State.PruneInterval, log.WithComponent("retention"))
	pruner.Start(ctx)
	defer pruner.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("engine: %w", err)
		}
	}()

	if cfg.API.Enabled {
		srv := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, eng, jour, hub, log.WithComponent("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	receive, err := updateSource(ctx, cfg, tg, router.HandleUpdate, logger)
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receive(ctx); err != nil {
			errCh <- fmt.Errorf("telegram: %w", err)
		}
	}()

	logger.Info("claudegram running (press Ctrl+C to stop)")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}
	cancel()

	// A running job is killed by the engine on shutdown; wait for it and
	// for in-flight command replies before the journal closes.
	wg.Wait()
	router.Wait()
	return runErr
}

// poller is the part of the Telegram client the restart loop drives.
type poller interface {
	Poll(ctx context.Context, handle telegram.Handler) error
}

// pollForever restarts the update loop after a failure, pausing backoff
// between attempts. A rejected token is not retried.
func pollForever(ctx context.Context, p poller, handle telegram.Handler, backoff time.Duration, logger *slog.Logger) error {
	for {
		err := p.Poll(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, telegram.ErrUnauthorized) {
			return err
		}
		if err == nil {
			err = errors.New("poll loop returned unexpectedly")
		}
		logger.Error("update loop crashed, restarting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}
