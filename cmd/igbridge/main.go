package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"igbridge/internal/bridge"
	"igbridge/internal/browser"
	"igbridge/internal/config"
	"igbridge/internal/instagram"
	"igbridge/internal/metrics"
	"igbridge/internal/store"
	"igbridge/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A .env next to the binary fills the ${VAR} references in the config.
	_ = godotenv.Load()

	logger = newLogger("info")

	root := &cobra.Command{
		Use:     "igbridge",
		Short:   "igbridge: Instagram direct messages in your Telegram chat",
		Long:    "igbridge polls an Instagram account's inbox, forwards new direct messages to a Telegram chat, and relays replies and reactions back to Instagram.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.igbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Bridge.TempDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("next: fill in instagram/telegram credentials, then `igbridge login` and `igbridge run`")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge (poller + Telegram relay)",
		Long:  "Logs in to Instagram, starts the inbox poller and the Telegram relay, and runs until interrupted.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(cfg.Bridge.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ig := instagram.NewClient(instagram.ClientConfig{
		Username:    cfg.Instagram.Username,
		Password:    cfg.Instagram.Password,
		TOTPSeed:    cfg.Instagram.TOTPSeed,
		SessionPath: cfg.Instagram.SessionPath,
		UserAgent:   cfg.Instagram.UserAgent,
		Proxy:       cfg.Instagram.Proxy,
		Logger:      logger,
	})
	if err := ig.Login(ctx); err != nil {
		return fmt.Errorf("instagram login: %w (try `igbridge login` for a browser login)", err)
	}
	logger.Info("instagram authenticated", "username", cfg.Instagram.Username, "user_id", ig.UserID())

	fetcher, err := instagram.NewFetcher(instagram.FetcherConfig{
		TempDir:       cfg.Bridge.TempDir,
		Timeout:       time.Duration(cfg.Bridge.DownloadTimeoutSeconds) * time.Second,
		MaxFileSizeMB: cfg.Bridge.MaxFileSizeMB,
		UserAgent:     cfg.Instagram.UserAgent,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info("telegram authorized", "bot", bot.Self.UserName, "owner_chat_id", cfg.Telegram.OwnerChatID)

	deliverer := telegram.NewDeliverer(telegram.DelivererConfig{
		Bot:         bot,
		Store:       db,
		OwnerChatID: cfg.Telegram.OwnerChatID,
		MaxRetries:  cfg.Bridge.MaxRetries,
		BaseDelay:   time.Duration(cfg.Bridge.RetryBaseDelaySeconds) * time.Second,
		Logger:      logger,
	})

	relay := telegram.NewRelay(telegram.RelayConfig{
		Bot:         bot,
		Store:       db,
		Instagram:   ig,
		OwnerChatID: cfg.Telegram.OwnerChatID,
		Logger:      logger,
	})

	poller := bridge.NewPoller(bridge.PollerConfig{
		Source:         ig,
		Fetcher:        fetcher,
		Deliverer:      deliverer,
		Store:          db,
		Interval:       time.Duration(cfg.Bridge.PollIntervalSeconds) * time.Second,
		ThreadLimit:    cfg.Bridge.ThreadLimit,
		PerThread:      cfg.Bridge.MessagesPerThread,
		AllowedSenders: cfg.Bridge.AllowedSenders.AllowSet(),
		Logger:         logger,
	})

	go func() {
		if err := relay.Run(ctx); err != nil {
			logger.Error("relay stopped", "err", err)
		}
	}()

	logger.Info("bridge started. Press Ctrl+C to stop.")
	return poller.Run(ctx)
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a browser window to log in to Instagram",
		Long:  "Opens a visible Chrome window for you to log in, including checkpoints and 2FA prompts. The session cookies are saved for headless use by `igbridge run`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return browser.Login(ctx, cfg.Instagram.ProfileDir, cfg.Instagram.SessionPath, logger)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bridge status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			if _, err := instagram.LoadSession(cfg.Instagram.SessionPath); err != nil {
				logger.Info("instagram session", "path", cfg.Instagram.SessionPath, "valid", false)
			} else {
				logger.Info("instagram session", "path", cfg.Instagram.SessionPath, "valid", true)
			}

			db, err := store.NewSQLiteStore(cfg.Bridge.DBPath, logger)
			if err != nil {
				logger.Info("store", "path", cfg.Bridge.DBPath, "open", false, "err", err)
				return nil
			}
			defer db.Close()
			seen, mappings, err := db.Stats(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("store", "path", cfg.Bridge.DBPath, "seen", seen, "mappings", mappings)
			fmt.Print(metrics.Collector.Render())
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. bridge.pollIntervalSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. bridge.pollIntervalSeconds 60)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
