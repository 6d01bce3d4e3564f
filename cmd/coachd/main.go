package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/coachwell/coachd/internal/api"
	"github.com/coachwell/coachd/internal/coach"
	"github.com/coachwell/coachd/internal/genai"
	"github.com/coachwell/coachd/internal/practice"
	"github.com/coachwell/coachd/internal/store"
	"github.com/coachwell/coachd/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for coachd state data
	DefaultStateDir = "/var/lib/coachd"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "coachd.db"
)

// Config holds environment configuration.
type Config struct {
	DatabaseURL   string `env:"DATABASE_URL"`
	StateDir      string `env:"COACHD_STATE_DIR"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	APIAddr       string `env:"API_ADDR"`
	ResponseModel string `env:"COACHD_RESPONSE_MODEL" envDefault:"gpt-4o"`
	ContextModel  string `env:"COACHD_CONTEXT_MODEL" envDefault:"gpt-4o-mini"`
}

// Flags holds command line flag values.
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	apiAddr       *string
	responseModel *string
	contextModel  *string
}

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping coachd with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"response_model", *flags.responseModel,
		"context_model", *flags.contextModel)

	if err := run(flags); err != nil {
		slog.Error("coachd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("coachd exited successfully")
}

// initializeLogger sets up structured logging. COACHD_DEBUG enables debug
// level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("COACHD_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No COACHD_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"COACHD_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"COACHD_RESPONSE_MODEL", config.ResponseModel,
		"COACHD_CONTEXT_MODEL", config.ContextModel)

	return config, nil
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for coachd data (overrides $COACHD_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		responseModel: flag.String("response-model", config.ResponseModel, "model for response generation (overrides $COACHD_RESPONSE_MODEL)"),
		contextModel:  flag.String("context-model", config.ContextModel, "model for context analysis and safety classification (overrides $COACHD_CONTEXT_MODEL)"),
	}

	flag.Parse()

	// Follow the state directory when the DSN was derived from it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage.
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects and opens the session store based on the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildChatClient constructs the GenAI chat client, or nil when no API key is
// configured. A nil client degrades model-backed stages to their deterministic
// defaults.
func buildChatClient(flags Flags) genai.ChatClient {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured, running with deterministic fallbacks only")
		return nil
	}
	client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Error("Failed to create GenAI client, running with deterministic fallbacks only", "error", err)
		return nil
	}
	return client
}

func run(flags Flags) error {
	sessions, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	catalog, err := practice.LoadCatalog()
	if err != nil {
		return err
	}
	slog.Info("Practice catalog loaded", "entries", len(catalog.Entries()))

	chat := buildChatClient(flags)
	pipeline := coach.NewPipeline(chat, coach.Config{
		ResponseModel: *flags.responseModel,
		ContextModel:  *flags.contextModel,
	}, catalog, sessions)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return api.NewServer(pipeline, apiOpts...).Run()
}
