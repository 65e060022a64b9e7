package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/segakai/segakai/internal/api"
	"github.com/segakai/segakai/internal/auth"
	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/lockfile"
	"github.com/segakai/segakai/internal/notify"
	"github.com/segakai/segakai/internal/scheduler"
	"github.com/segakai/segakai/internal/store"
	"github.com/segakai/segakai/internal/util"
)

// Maintenance job schedules.
const (
	DefaultSessionPurgeSchedule = "@hourly"
	// StaleNotificationSchedule requeues notifications left in sending by a
	// crashed delivery attempt.
	StaleNotificationSchedule = "@every 5m"
)

type serveFlags struct {
	dsn           string
	genaiDebugDir string
	perMin        int
	burst         int
	purgeSpec     string
	sessionTTL    time.Duration
}

func newServeCmd(cfg *Config) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plan generation service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&cfg.APIAddr, "addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	fl.StringVar(&f.dsn, "db-dsn", "", "PostgreSQL DSN or SQLite path (default $DATABASE_URL, else <state-dir>/"+DefaultDBFileName+")")
	fl.StringVar(&cfg.Provider, "provider", cfg.Provider, "LLM provider: openai or gemini (overrides $LLM_PROVIDER)")
	fl.StringVar(&cfg.Model, "model", cfg.Model, "LLM model name (overrides $LLM_MODEL)")
	fl.StringVar(&cfg.OpenAIKey, "openai-api-key", cfg.OpenAIKey, "OpenAI API key; when empty the OPENAI_API_KEY app config entry is used (overrides $OPENAI_API_KEY)")
	fl.StringVar(&cfg.GeminiKey, "gemini-api-key", cfg.GeminiKey, "Gemini API key; when empty the GEMINI_API_KEY app config entry is used (overrides $GEMINI_API_KEY)")
	fl.BoolVar(&cfg.SecureCookies, "secure-cookies", cfg.SecureCookies, "mark session cookies Secure (overrides $SEGAKAI_SECURE_COOKIES)")
	fl.StringVar(&f.genaiDebugDir, "genai-debug-dir", "", "write every LLM exchange to this directory as JSON")
	fl.IntVar(&f.perMin, "generate-per-min", util.ParseIntEnv("SEGAKAI_GENERATE_PER_MIN", api.DefaultGeneratePerMin), "plan generations allowed per user per minute")
	fl.IntVar(&f.burst, "generate-burst", util.ParseIntEnv("SEGAKAI_GENERATE_BURST", api.DefaultGenerateBurst), "plan generation burst per user")
	fl.DurationVar(&f.sessionTTL, "session-ttl", util.ParseDurationEnv("SEGAKAI_SESSION_TTL", auth.DefaultSessionTTL), "how long a sign-in stays valid")
	fl.StringVar(&f.purgeSpec, "session-purge-schedule", util.EnvOrDefault("SEGAKAI_SESSION_PURGE_SCHEDULE", DefaultSessionPurgeSchedule), "cron schedule for deleting expired sessions, empty disables")
	return cmd
}

func runServe(ctx context.Context, cfg *Config, f serveFlags) error {
	dsn := f.dsn
	if dsn == "" {
		dsn = cfg.databaseDSN()
	}
	slog.Debug("Final configuration", "state_dir", cfg.StateDir, "dsn_type", store.DetectDSNType(dsn), "api_addr", cfg.APIAddr, "provider", cfg.Provider)

	// One server per SQLite state directory.
	if store.DetectDSNType(dsn) == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		lock, err := lockfile.Acquire(cfg.StateDir, cfg.APIAddr)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	factory := genai.NewFactory(configLookup(st), buildGenAIOptions(cfg, f)...)
	authSvc := auth.NewService(st, auth.WithSessionTTL(f.sessionTTL))

	apiOpts := []api.Option{
		api.WithAddr(cfg.APIAddr),
		api.WithSecureCookies(cfg.SecureCookies),
		api.WithGenerateRateLimit(f.perMin, f.burst),
	}

	jobs := scheduler.New()
	if f.purgeSpec != "" {
		if err := jobs.AddJob("purge-expired-sessions", f.purgeSpec, purgeSessions(authSvc)); err != nil {
			return err
		}
	}
	workers := []api.Worker{jobs.Run}
	if cfg.twilioConfigured() {
		sender, err := notify.NewTwilioSender(
			notify.WithAccountSID(cfg.TwilioAccountSID),
			notify.WithAuthToken(cfg.TwilioAuthToken),
			notify.WithFromWhats(cfg.TwilioFrom),
		)
		if err != nil {
			return fmt.Errorf("failed to configure Twilio: %w", err)
		}
		dispatcher := notify.NewDispatcher(st, sender)
		if err := dispatcher.RecoverStale(ctx); err != nil {
			slog.Error("serve: failed to recover stale notifications", "error", err)
		}
		if err := jobs.AddJob("requeue-stale-notifications", StaleNotificationSchedule, dispatcher.RecoverStale); err != nil {
			return err
		}
		workers = append(workers, dispatcher.Run)
		apiOpts = append(apiOpts, api.WithNotifications(true))
	} else {
		slog.Info("serve: Twilio not configured, plan notifications disabled")
	}

	srv := api.NewServer(st, authSvc, factory, apiOpts...)
	slog.Info("Bootstrapping SegakAI", "addr", srv.Addr(), "workers", len(workers), "jobs", jobs.Len())
	if err := srv.Run(ctx, workers...); err != nil {
		slog.Error("SegakAI server failed", "error", err)
		return err
	}
	slog.Info("SegakAI exited successfully")
	return nil
}

// buildGenAIOptions constructs LLM client options. The key for the selected
// provider is passed only when set so the factory can fall back to app config.
func buildGenAIOptions(cfg *Config, f serveFlags) []genai.Option {
	opts := []genai.Option{genai.WithProvider(cfg.Provider)}
	if cfg.Model != "" {
		opts = append(opts, genai.WithModel(cfg.Model))
	}
	key := cfg.OpenAIKey
	if cfg.Provider == genai.ProviderGemini {
		key = cfg.GeminiKey
	}
	if key != "" {
		opts = append(opts, genai.WithAPIKey(key))
	}
	debugDir := f.genaiDebugDir
	if debugDir == "" && cfg.Debug {
		debugDir = filepath.Join(cfg.StateDir, "genai-debug")
	}
	if debugDir != "" {
		opts = append(opts, genai.WithDebugDir(debugDir))
	}
	return opts
}

// configLookup reads provider keys from app configuration at request time.
func configLookup(st store.Store) genai.KeyLookup {
	return func(ctx context.Context, key string) (string, error) {
		entry, err := st.GetConfig(ctx, key)
		if err != nil {
			return "", err
		}
		if entry == nil {
			return "", nil
		}
		return entry.Value, nil
	}
}

func purgeSessions(svc *auth.Service) scheduler.Task {
	return func(ctx context.Context) error {
		n, err := svc.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Debug("serve: purged expired sessions", "count", n)
		}
		return nil
	}
}
