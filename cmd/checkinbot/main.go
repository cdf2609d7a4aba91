package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nxtoffice/checkinbot/internal/api"
	"github.com/nxtoffice/checkinbot/internal/messaging"
	"github.com/nxtoffice/checkinbot/internal/pending"
	"github.com/nxtoffice/checkinbot/internal/recordstore"
	"github.com/nxtoffice/checkinbot/internal/store"
	"github.com/nxtoffice/checkinbot/internal/util"
	"github.com/nxtoffice/checkinbot/internal/workflow"
)

// Default configuration constants
const (
	// DefaultAPIAddr is the default status API listen address.
	DefaultAPIAddr = ":8080"
	// DefaultLedgerDriver selects the in-memory ledger when none is configured.
	DefaultLedgerDriver = "memory"
)

// Config holds environment configuration.
type Config struct {
	BotToken          string
	RecordStoreURL    string
	ApprovalChannelID string
	NotifyChannelID   string
	ScheduleChannelID string
	ApproverIDs       []string
	ReplyTimeout      time.Duration
	CollectEmail      bool
	LedgerDriver      string
	LedgerDSN         string
	APIAddr           string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	parseCommandLineFlags(&config)

	if config.BotToken == "" {
		slog.Error("DISCORD_TOKEN is required")
		os.Exit(1)
	}
	if config.RecordStoreURL == "" {
		slog.Error("RECORD_STORE_URL is required")
		os.Exit(1)
	}

	if err := run(config); err != nil && err != context.Canceled {
		slog.Error("checkinbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("checkinbot exited successfully")
}

// initializeLogger sets up structured logging with the configured level.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:          os.Getenv("DISCORD_TOKEN"),
		RecordStoreURL:    os.Getenv("RECORD_STORE_URL"),
		ApprovalChannelID: os.Getenv("APPROVAL_CHANNEL_ID"),
		NotifyChannelID:   os.Getenv("NOTIFY_CHANNEL_ID"),
		ScheduleChannelID: os.Getenv("SCHEDULE_CHANNEL_ID"),
		ApproverIDs:       util.ParseListEnv("APPROVER_IDS"),
		ReplyTimeout:      util.ParseDurationSecondsEnv("REPLY_TIMEOUT_SECONDS", workflow.DefaultReplyTimeout),
		CollectEmail:      util.ParseBoolEnv("COLLECT_EMAIL", false),
		LedgerDriver:      os.Getenv("LEDGER_DRIVER"),
		LedgerDSN:         os.Getenv("LEDGER_DSN"),
		APIAddr:           os.Getenv("API_ADDR"),
	}

	if config.LedgerDriver == "" {
		config.LedgerDriver = DefaultLedgerDriver
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	return config
}

// parseCommandLineFlags applies flag overrides on top of the environment.
func parseCommandLineFlags(config *Config) {
	apiAddr := flag.String("api-addr", config.APIAddr, "status API listen address")
	ledgerDriver := flag.String("ledger-driver", config.LedgerDriver, "ledger backend: memory, sqlite3, or postgres")
	ledgerDSN := flag.String("ledger-dsn", config.LedgerDSN, "ledger database DSN")
	recordStoreURL := flag.String("record-store-url", config.RecordStoreURL, "record service endpoint URL")
	flag.Parse()

	config.APIAddr = *apiAddr
	config.LedgerDriver = *ledgerDriver
	config.LedgerDSN = *ledgerDSN
	config.RecordStoreURL = *recordStoreURL
}

// buildLedger selects the ledger backend from configuration.
func buildLedger(config Config) (store.Store, error) {
	switch config.LedgerDriver {
	case "memory":
		return store.NewInMemoryStore(), nil
	case "sqlite3":
		return store.NewSQLiteStore(store.WithDSN(config.LedgerDSN))
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(config.LedgerDSN))
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want memory, sqlite3, or postgres)", config.LedgerDriver)
	}
}

func run(config Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := recordstore.NewClient(recordstore.WithBaseURL(config.RecordStoreURL))
	if err != nil {
		return err
	}

	ledger, err := buildLedger(config)
	if err != nil {
		return err
	}
	defer ledger.Close()

	svc, err := messaging.NewDiscordService(config.BotToken)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	pend := pending.NewStore()
	engine := workflow.NewEngine(workflow.Config{
		ApprovalChannelID: config.ApprovalChannelID,
		NotifyChannelID:   config.NotifyChannelID,
		ScheduleChannelID: config.ScheduleChannelID,
		ApproverIDs:       config.ApproverIDs,
		ReplyTimeout:      config.ReplyTimeout,
		CollectEmail:      config.CollectEmail,
	}, svc, messaging.NewWaiter(), pend, records, ledger)

	statusAPI := api.NewServer(config.APIAddr, pend, ledger)
	statusAPI.Start()
	defer statusAPI.Stop()

	slog.Info("checkinbot bootstrapped",
		"api_addr", config.APIAddr,
		"ledger_driver", config.LedgerDriver,
		"collect_email", config.CollectEmail,
		"approvers", len(config.ApproverIDs))
	return engine.Run(ctx)
}
