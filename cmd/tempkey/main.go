// tempkey - Telegram device authorization bot
//
// This is the main entry point for the tempkey bot. It keeps a small JSON
// list of approved device IDs, lets a single administrator manage it over
// Telegram, and mirrors every change to a remote archive (git, the GitHub
// contents API, or a retained MQTT topic).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nerrad567/tempkey-core/internal/api"
	"github.com/nerrad567/tempkey-core/internal/audit"
	"github.com/nerrad567/tempkey-core/internal/bot"
	"github.com/nerrad567/tempkey-core/internal/device"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/config"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/database"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/logging"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tempkey-core/internal/replication"
	"github.com/nerrad567/tempkey-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// defaultEnvFile is loaded before configuration when present.
const defaultEnvFile = ".env"

// newBotAPI creates the Telegram client. Tests replace it with a fake.
var newBotAPI = func(token string, debug bool) (bot.BotAPI, string, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, "", err
	}
	client.Debug = debug
	return client, client.Self.UserName, nil
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath      string
	envFile         string
	showVersion     bool
	migrationStatus bool
	migrateDown     bool
}

// parseFlags parses args with pflag.
//
// Parameters:
//   - args: Command line arguments without the program name
//
// Returns:
//   - options: Parsed flags
//   - error: If an unknown flag or bad value is given
func parseFlags(args []string) (options, error) {
	var opts options

	flags := pflag.NewFlagSet("tempkey", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("TEMPKEY_CONFIG"),
		"path to the YAML configuration file (environment only when empty)")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile,
		"dotenv file loaded before configuration; ignored when missing")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flags.BoolVar(&opts.migrationStatus, "migrations", false,
		"print applied and pending audit database migrations and exit")
	flags.BoolVar(&opts.migrateDown, "migrate-down", false,
		"roll back the latest audit database migration and exit")

	if err := flags.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination for --version and migration command output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "tempkey %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting tempkey",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	// Audit trail
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	switch {
	case opts.migrationStatus:
		return printMigrationStatus(ctx, db, stdout)
	case opts.migrateDown:
		return rollbackMigration(ctx, db, stdout)
	}

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	auditRepo := audit.NewSQLiteRepository(db.DB)
	log.Info("database ready", "path", db.Path())

	components := map[string]api.HealthChecker{"database": db}

	// Metrics (optional)
	influxClient, err := connectInfluxDB(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		components["influxdb"] = influxClient
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Replication
	deps := replication.Deps{StorePath: cfg.Store.Path}
	if cfg.Replication.Strategy == config.StrategyMQTT {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		deps.MQTT = mqttClient
		components["mqtt"] = mqttClient
	}

	sink, err := replication.NewSink(cfg.Replication, deps)
	if err != nil {
		return fmt.Errorf("configuring replication: %w", err)
	}
	replicator := replication.NewReplicator(sink, cfg.GetReplicationTimeout())
	replicator.SetLogger(log)
	if influxClient != nil {
		replicator.SetMetrics(influxClient)
	}
	log.Info("replication configured", "strategy", cfg.Replication.Strategy, "sink", replicator.SinkName())

	// Record store
	store := device.NewStore(cfg.Store.Path, replicator)
	store.SetLogger(log)
	log.Info("record store loaded", "path", store.Path(), "records", store.Count())

	dispatcher := bot.NewDispatcher(store, cfg.Bot.AdminID)
	dispatcher.SetLogger(log)
	dispatcher.SetAudit(auditRepo)
	if influxClient != nil {
		dispatcher.SetMetrics(influxClient)
	}

	// Verify all connections are healthy before serving
	if err := healthCheck(ctx, components); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed", "components", len(components))

	// Health endpoint
	if cfg.Health.Enabled {
		healthServer, healthErr := api.New(api.Deps{
			Config:     cfg.Health,
			Logger:     log,
			Status:     store,
			Version:    version,
			Components: components,
		})
		if healthErr != nil {
			return fmt.Errorf("creating health server: %w", healthErr)
		}
		if startErr := healthServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting health server: %w", startErr)
		}
		if checkErr := healthServer.HealthCheck(ctx); checkErr != nil {
			return fmt.Errorf("health server: %w", checkErr)
		}
		defer func() {
			if closeErr := healthServer.Close(); closeErr != nil {
				log.Error("error closing health server", "error", closeErr)
			}
		}()
	} else {
		log.Info("health endpoint disabled")
	}

	// Chat gateway
	botAPI, username, err := newBotAPI(cfg.Bot.Token, cfg.Bot.Debug)
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}
	log.Info("Telegram connected", "bot", username)

	gateway := bot.NewGateway(botAPI, dispatcher, time.Duration(cfg.Bot.PollTimeout)*time.Second)
	gateway.SetLogger(log)

	log.Info("initialisation complete, waiting for messages")
	if runErr := gateway.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("running gateway: %w", runErr)
	}

	log.Info("shutdown signal received, cleaning up")
	if influxClient != nil {
		influxClient.Flush()
	}
	log.Info("tempkey stopped")
	return nil
}

// connectInfluxDB connects to InfluxDB when enabled.
//
// Returns:
//   - *influxdb.Client: Connected client, or nil when disabled
//   - error: If enabled but unreachable
func connectInfluxDB(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// healthCheck verifies every infrastructure connection, in name order.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - components: Connections keyed by name (database, mqtt, influxdb)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, components map[string]api.HealthChecker) error {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := components[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// printMigrationStatus writes one line per applied and pending migration.
func printMigrationStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied %s %s\n", m.Version, m.AppliedAt.UTC().Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending %s %s\n", m.Version, m.Name)
	}
	return nil
}

// rollbackMigration rolls back the latest applied migration, if any.
func rollbackMigration(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, _, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "no migrations to roll back")
		return nil
	}

	latest := applied[len(applied)-1]
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration %s: %w", latest.Version, err)
	}
	fmt.Fprintf(out, "rolled back %s\n", latest.Version)
	return nil
}
