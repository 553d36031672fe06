package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/api"
	"github.com/BTreeMap/ClassPipe/internal/bot"
	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/grading"
	"github.com/BTreeMap/ClassPipe/internal/messaging"
	"github.com/BTreeMap/ClassPipe/internal/scheduler"
	"github.com/BTreeMap/ClassPipe/internal/state"
	"github.com/BTreeMap/ClassPipe/internal/store"
	"github.com/BTreeMap/ClassPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/ClassPipe/internal/util"
	"github.com/BTreeMap/ClassPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ClassPipe state data
	DefaultStateDir = "/var/lib/classpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "classpipe.db"
	// DefaultTimezone drives deadline rendering and digest schedules
	DefaultTimezone = "Asia/Jakarta"
	// DefaultMorningCron sends the open-assignment digest before school
	DefaultMorningCron = "0 7 * * *"
	// DefaultAfternoonCron sends the due-tomorrow nudge after school
	DefaultAfternoonCron = "0 17 * * *"
	// TransportWhatsmeow is the paired-device WhatsApp transport
	TransportWhatsmeow = "whatsmeow"
	// TransportTwilio is the Twilio WhatsApp Business API transport
	TransportTwilio = "twilio"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureStateDir(flags); err != nil {
		slog.Error("Failed to create state directory", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *flags.timezone, "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ClassPipe",
		"transport", *flags.transport,
		"timezone", *flags.timezone,
		"api_addr", *flags.apiAddr,
		"dsn_set", *flags.dbDSN != "")
	if err := run(flags, config, loc); err != nil {
		slog.Error("ClassPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ClassPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	Timezone     string
	Transport    string
	APIAddr      string
	APIToken     string
	MorningCron  string
	AfternoonCron string

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	GradingWebhookURL string
	BroadcastBatch    int
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	timezone  *string
	transport *string
	apiAddr   *string
}

// initializeLogger sets up structured logging; CLASSPIPE_DEBUG raises the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CLASSPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("CLASSPIPE_STATE_DIR"),
		Timezone:      os.Getenv("CLASSPIPE_TIMEZONE"),
		Transport:     os.Getenv("CLASSPIPE_TRANSPORT"),
		APIAddr:       os.Getenv("API_ADDR"),
		APIToken:      os.Getenv("API_TOKEN"),
		MorningCron:   os.Getenv("DIGEST_MORNING_CRON"),
		AfternoonCron: os.Getenv("DIGEST_AFTERNOON_CRON"),

		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3Region:        os.Getenv("S3_REGION"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:     os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),

		GradingWebhookURL: os.Getenv("GRADING_WEBHOOK_URL"),
		BroadcastBatch:    util.ParseIntEnv("BROADCAST_BATCH_SIZE", 0),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}
	if config.Transport == "" {
		config.Transport = TransportWhatsmeow
	}
	if config.MorningCron == "" {
		config.MorningCron = DefaultMorningCron
	}
	if config.AfternoonCron == "" {
		config.AfternoonCron = DefaultAfternoonCron
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CLASSPIPE_STATE_DIR", config.StateDir,
		"CLASSPIPE_TIMEZONE", config.Timezone,
		"CLASSPIPE_TRANSPORT", config.Transport,
		"API_ADDR", config.APIAddr,
		"API_TOKEN_SET", config.APIToken != "",
		"S3_BUCKET", config.S3Bucket,
		"GRADING_WEBHOOK_URL_SET", config.GradingWebhookURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for ClassPipe data (overrides $CLASSPIPE_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		timezone:  flag.String("timezone", config.Timezone, "IANA timezone for deadlines and digests (overrides $CLASSPIPE_TIMEZONE)"),
		transport: flag.String("transport", config.Transport, "messaging transport, whatsmeow or twilio (overrides $CLASSPIPE_TRANSPORT)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	// Follow an overridden state dir when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	return flags
}

// ensureStateDir creates the directory backing a file-based DSN.
func ensureStateDir(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(*flags.dbDSN), 0755)
}

// buildStore opens the persistent store matching the DSN type.
func buildStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildFileStorage picks S3 when a bucket is configured, otherwise keeps
// uploads in memory (attachments are lost on restart).
func buildFileStorage(ctx context.Context, config Config) (filestore.Storage, error) {
	if config.S3Bucket == "" {
		slog.Warn("No S3_BUCKET configured, storing uploads in memory only")
		return filestore.NewMemoryStorage(), nil
	}
	return filestore.NewS3Storage(ctx,
		filestore.WithEndpoint(config.S3Endpoint),
		filestore.WithRegion(config.S3Region),
		filestore.WithBucket(config.S3Bucket),
		filestore.WithCredentials(config.S3AccessKey, config.S3SecretKey),
		filestore.WithPublicBaseURL(config.S3PublicBaseURL),
	)
}

// buildMessaging constructs the selected transport. The Twilio variant also
// returns its inbound webhook for mounting on the API server.
func buildMessaging(flags Flags) (messaging.Service, []api.Option, error) {
	if *flags.transport == TransportTwilio {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, []api.Option{api.WithWebhook("/twilio/webhook", svc.WebhookHandler)}, nil
	}

	var waOpts []whatsapp.Option
	waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewWhatsAppService(client), nil, nil
}

// run wires every component and blocks until a shutdown signal.
func run(flags Flags, config Config, loc *time.Location) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	files, err := buildFileStorage(ctx, config)
	if err != nil {
		return err
	}

	svc, webhookOpts, err := buildMessaging(flags)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	var bcastOpts []messaging.BroadcasterOption
	if config.BroadcastBatch > 0 {
		bcastOpts = append(bcastOpts, messaging.WithBatchSize(config.BroadcastBatch))
	}
	bcast := messaging.NewBroadcaster(svc, bcastOpts...)

	var gradeOpts []grading.Option
	if config.GradingWebhookURL != "" {
		gradeOpts = append(gradeOpts, grading.WithWebhookURL(config.GradingWebhookURL))
	}
	grader := grading.NewClient(gradeOpts...)

	engine := bot.NewEngine(svc, bcast, st, state.NewMemoryManager(), files, grader,
		bot.WithLocation(loc))

	sched := scheduler.NewScheduler(scheduler.WithLocation(loc))
	defer sched.Stop()
	if err := sched.AddJob(config.MorningCron, func() {
		engine.SendDigests(ctx)
	}); err != nil {
		return err
	}
	if err := sched.AddJob(config.AfternoonCron, func() {
		engine.SendDueTomorrowReminders(ctx)
	}); err != nil {
		return err
	}

	apiOpts := []api.Option{api.WithToken(config.APIToken)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, webhookOpts...)
	server := api.NewServer(st, engine, apiOpts...)

	errCh := make(chan error, 2)
	go func() { errCh <- server.Run() }()
	go func() { errCh <- engine.Run(ctx) }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			stop()
			shutdownAPI(server)
			return err
		}
	}

	shutdownAPI(server)
	return nil
}

func shutdownAPI(server *api.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
}
