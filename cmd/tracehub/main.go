package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibotaj/tracehub/internal/api"
	"github.com/vibotaj/tracehub/internal/auditpack"
	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/bol"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/config"
	"github.com/vibotaj/tracehub/internal/invitations"
	"github.com/vibotaj/tracehub/internal/logging"
	"github.com/vibotaj/tracehub/internal/notifications"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
	"github.com/vibotaj/tracehub/internal/tracking"
	"github.com/vibotaj/tracehub/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "tracehub",
	Short:   "TraceHub - compliance and shipment engine",
	Long:    `TraceHub tracks shipments, validates trade documents against the compliance matrix, and keeps an auditable trail for every tenant.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TraceHub %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Config{Format: "auto", Level: "info", Component: "tracehub"})
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup, replaced once config is loaded.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "tracehub",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "tracehub",
	})

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	if cfg.JWTVerifierKey == "" {
		log.Fatal().Msg("JWT_VERIFIER_KEY is required")
	}

	log.Info().Str("version", Version).Msg("Starting TraceHub engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	blobs := openBlobStore(ctx, cfg)
	tokens := auth.NewTokens(cfg.JWTVerifierKey, cfg.TokenTTL)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	bus := notifications.NewBus(st, hub)

	dispatcher := notifications.NewDispatcher(st, newMailer(cfg))
	go dispatcher.Run(ctx)

	engine := compliance.NewEngine(compliance.NewMatrix())
	compSvc := compliance.NewService(st, engine, bus)

	bolSvc := bol.NewService(st, blobs, newClassifier(cfg))
	bolSvc.OnEnriched = func(shipmentID string) {
		// Runs outside the upload request; the enrichment already
		// committed, so a failed re-evaluation only delays the decision.
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), cfg.DBTimeout)
			defer cancel()
			if _, err := compSvc.Run(rctx, tenant.System(), shipmentID); err != nil {
				log.Warn().Err(err).Str("shipment_id", shipmentID).Msg("Re-evaluation after enrichment failed")
			}
		}()
	}

	carrier := tracking.NewHTTPCarrier(cfg.CarrierBaseURL, cfg.CarrierAPIKey, "carrier-api", cfg.CarrierTimeout, 0)
	ingestor := tracking.NewIngestor(st, carrier, bus, cfg.WorkerPoolSize, cfg.CarrierTimeout, cfg.PollIntervalOverrides)
	go ingestor.Run(ctx)

	invSvc := invitations.NewService(st, bus)
	auditPacks := auditpack.NewService(st, blobs, engine)

	go runSweepers(ctx, st, bus, invSvc)

	handler := api.NewServer(api.Deps{
		Config:      cfg,
		Store:       st,
		Blobs:       blobs,
		Tokens:      tokens,
		Bus:         bus,
		Hub:         hub,
		BoL:         bolSvc,
		Compliance:  compSvc,
		Invitations: invSvc,
		AuditPacks:  auditPacks,
		Version:     Version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	// Flush whatever email the bus enqueued during shutdown.
	dispatcher.Drain(shutdownCtx)
	log.Info().Msg("Stopped")
}

// openBlobStore selects the document storage driver. S3 is the hosted
// default; the filesystem driver serves single-node deployments and
// signs its own download links.
func openBlobStore(ctx context.Context, cfg *config.Config) blob.Store {
	switch cfg.StorageDriver {
	case "s3":
		s3, err := blob.NewS3Store(ctx, cfg.StorageBucketPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		log.Info().Str("bucket", cfg.StorageBucketPrefix).Msg("Using S3 document storage")
		return s3
	case "fs", "":
		fs, err := blob.NewFSStore(cfg.StorageDir, cfg.PublicURL, []byte(cfg.JWTVerifierKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize filesystem storage")
		}
		log.Info().Str("dir", cfg.StorageDir).Msg("Using filesystem document storage")
		return fs
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
		return nil
	}
}

func newMailer(cfg *config.Config) notifications.Mailer {
	if cfg.MailProvider == "smtp" && cfg.SMTPHost != "" {
		log.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Msg("Using SMTP mail delivery")
		return notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	log.Info().Msg("No SMTP host configured, email deliveries will be logged only")
	return notifications.LogMailer{}
}

func newClassifier(cfg *config.Config) bol.Classifier {
	if cfg.ClassifierURL != "" {
		log.Info().Str("url", cfg.ClassifierURL).Msg("Using external document classifier")
		return bol.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.BlobTimeout)
	}
	log.Info().Msg("No classifier configured, using keyword fallback")
	return bol.KeywordClassifier{}
}
