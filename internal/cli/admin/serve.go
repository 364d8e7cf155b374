package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frontlinehq/frontline/internal/agent"
	"github.com/frontlinehq/frontline/internal/api/handlers"
	"github.com/frontlinehq/frontline/internal/config"
	"github.com/frontlinehq/frontline/internal/jobs"
	"github.com/frontlinehq/frontline/internal/llm"
	"github.com/frontlinehq/frontline/internal/repository"
	"github.com/frontlinehq/frontline/internal/server"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/frontlinehq/frontline/internal/telemetry"
	"github.com/frontlinehq/frontline/internal/webhook"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the frontline escalation and knowledge API server",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	escalationRepo := repository.NewEscalationRepository(pool)
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	tracker := agent.NewPendingTracker()

	var llmClient *llm.Client
	if cfg.HasOpenAI() {
		llmClient = llm.NewClientWithConfig(llm.Config{
			APIKey:    cfg.OpenAIAPIKey,
			ChatModel: cfg.OpenAIModel,
		})
		log.Println("decision service configured")
	} else {
		log.Println("no OpenAI key configured, unmatched questions will escalate")
	}

	var embedder service.EmbeddingClient
	if llmClient != nil {
		embedder = llmClient
	}
	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, embedder)

	var notifier service.ResolutionNotifier
	var deliveryWorker *jobs.Worker
	var delivery *jobs.DeliveryWorker
	if cfg.HasWebhook() {
		sender := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret)
		delivery = jobs.NewDeliveryWorker(sender, auditRepo)
		notifier = delivery
		deliveryWorker = jobs.NewWorker("delivery", delivery, 1*time.Second)
		go deliveryWorker.Start(ctx)
		log.Println("resolution delivery worker started")
	}

	escalationSvc := service.NewEscalationService(escalationRepo, auditRepo, txRunner, tracker, notifier)
	escalationSvc.SameCallerSharedWords = cfg.DupSharedWords
	escalationSvc.CrossCallerOverlap = cfg.DupOverlapRatio

	sweeper := jobs.NewTimeoutSweeper(escalationRepo, auditRepo, tracker, cfg.EscalationTimeout)
	sweeperWorker := jobs.NewWorker("timeout-sweeper", sweeper, cfg.SweepInterval)
	go sweeperWorker.Start(ctx)

	cache := agent.NewKnowledgeCache(knowledgeRepo, cfg.SnapshotLimit, cfg.SnapshotTTL)
	matcher := agent.NewMatcher()

	var decisionClient agent.DecisionClient
	if llmClient != nil {
		decisionClient = llmClient
	}
	engine := agent.NewEngine(cache, matcher, escalationSvc, decisionClient, agent.EngineConfig{
		AgentName:      cfg.AgentName,
		UpdateThrottle: cfg.UpdateCheckInterval,
	})

	routerCfg := server.RouterConfig{
		APIToken:          cfg.APIToken,
		EscalationHandler: handlers.NewEscalationHandler(escalationSvc),
		KnowledgeHandler:  handlers.NewKnowledgeHandler(knowledgeSvc),
		DecisionHandler:   handlers.NewDecisionHandler(engine, escalationSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	sweeperWorker.Stop()
	if deliveryWorker != nil {
		deliveryWorker.Stop()
		// Flush anything still queued before the process exits.
		if err := delivery.ProcessJobs(ctx); err != nil {
			log.Printf("final delivery drain failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
