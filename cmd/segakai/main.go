// Command segakai runs the SegakAI plan service and the terminal onboarding
// wizard that talks to it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/segakai/segakai/internal/api"
	"github.com/segakai/segakai/internal/client"
	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDirName is created under the user's home directory when
	// SEGAKAI_STATE_DIR is not set.
	DefaultStateDirName = ".segakai"
	// DefaultDBFileName is the SQLite database used when DATABASE_URL is unset.
	DefaultDBFileName = "segakai.db"
)

func main() {
	cfg := loadEnvironmentConfig()
	if err := newRootCmd(&cfg).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// Config holds environment configuration. Command flags override it.
type Config struct {
	StateDir      string
	DatabaseURL   string
	OpenAIKey     string
	GeminiKey     string
	Provider      string
	Model         string
	APIAddr       string
	ServerURL     string
	LogLevel      string
	Debug         bool
	SecureCookies bool

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:         os.Getenv("SEGAKAI_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		Provider:         util.EnvOrDefault("LLM_PROVIDER", genai.ProviderOpenAI),
		Model:            os.Getenv("LLM_MODEL"),
		APIAddr:          util.EnvOrDefault("API_ADDR", api.DefaultServerAddress),
		ServerURL:        util.EnvOrDefault("SEGAKAI_SERVER_URL", client.DefaultServerURL),
		LogLevel:         util.EnvOrDefault("SEGAKAI_LOG_LEVEL", "info"),
		Debug:            util.ParseBoolEnv("SEGAKAI_DEBUG", false),
		SecureCookies:    util.ParseBoolEnv("SEGAKAI_SECURE_COOKIES", false),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = defaultStateDir()
	}

	slog.Debug("environment variables loaded",
		"SEGAKAI_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"LLM_PROVIDER", config.Provider,
		"API_ADDR", config.APIAddr,
		"SEGAKAI_SERVER_URL", config.ServerURL,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "")

	return config
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultStateDirName
	}
	return filepath.Join(home, DefaultStateDirName)
}

// databaseDSN returns DATABASE_URL, or the SQLite file in the state directory.
func (c Config) databaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// twilioConfigured reports whether plan notifications can be sent.
func (c Config) twilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// initializeLogger sets up structured logging on w.
func initializeLogger(cfg *Config, w io.Writer) error {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "segakai",
		Short: "SegakAI personalised fitness and nutrition plans",
		Long: `SegakAI collects your personal details, lifestyle, physical attributes and
fitness goals, then generates a workout and diet plan with an LLM.

Run "segakai serve" to start the plan service, then "segakai signup" and
"segakai onboard" to create your first plan.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logs stay on stderr, prompts and results on stdout.
			return initializeLogger(cfg, cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for the database, session and wizard progress (overrides $SEGAKAI_STATE_DIR)")
	pf.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "SegakAI service URL used by client commands (overrides $SEGAKAI_SERVER_URL)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $SEGAKAI_LOG_LEVEL)")
	pf.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging (overrides $SEGAKAI_DEBUG)")

	root.AddCommand(
		newServeCmd(cfg),
		newSignupCmd(cfg),
		newLoginCmd(cfg),
		newLogoutCmd(cfg),
		newWhoamiCmd(cfg),
		newProfileCmd(cfg),
		newPasswdCmd(cfg),
		newOnboardCmd(cfg),
		newPlansCmd(cfg),
		newAdminCmd(cfg),
		newConfigCmd(cfg),
	)
	return root
}

// newClient returns an API client whose session lives in the state directory.
func newClient(cfg *Config) (*client.Client, error) {
	tokens, err := client.NewFileTokenStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return client.New(cfg.ServerURL, client.WithTokenStore(tokens))
}
