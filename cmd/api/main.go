package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/gip-inclusion/geiq-assessments/docs" // This is for Swagger
	"github.com/gip-inclusion/geiq-assessments/internal/auth"
	"github.com/gip-inclusion/geiq-assessments/internal/config"
	"github.com/gip-inclusion/geiq-assessments/internal/database"
	"github.com/gip-inclusion/geiq-assessments/internal/docstore"
	"github.com/gip-inclusion/geiq-assessments/internal/email"
	"github.com/gip-inclusion/geiq-assessments/internal/handlers"
	"github.com/gip-inclusion/geiq-assessments/internal/label"
	"github.com/gip-inclusion/geiq-assessments/internal/logger"
	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/middleware"
	"github.com/gip-inclusion/geiq-assessments/internal/outbox"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/scheduler"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
	"github.com/gip-inclusion/geiq-assessments/internal/vault"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title GEIQ Assessments API
// @version 1.0
// @description Backend API for GEIQ assessment campaigns: Label sync, submission and two-tier institutional review

// @contact.name GIP de l'inclusion
// @contact.email assistance@inclusion.gouv.fr

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	// Run migrations
	migrationExecutor := database.NewMigrationExecutor(db.DB)
	if err := migrationExecutor.RunMigrations("./migrations"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Prometheus metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB)
	campaignRepo := repository.NewCampaignRepository(db.DB)
	companyRepo := repository.NewCompanyRepository(db.DB)
	institutionRepo := repository.NewInstitutionRepository(db.DB)
	assessmentRepo := repository.NewAssessmentRepository(db.DB)
	employeeRepo := repository.NewEmployeeRepository(db.DB)
	fileRepo := repository.NewFileRepository(db.DB)
	outboxRepo := repository.NewOutboxRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)

	// JWT auth
	authSvc := auth.NewService(&cfg.JWT)

	// Document signing key comes from Vault in production, falls back to env
	signingKey := cfg.Docstore.SigningKey
	if cfg.Vault.Enabled {
		vaultClient, err := vault.NewClient(&vault.Config{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			KVMount: cfg.Vault.KVMount,
		})
		if err != nil {
			slog.Error("Failed to create Vault client", "error", err)
			os.Exit(1)
		}
		vaultCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		signingKey, err = vaultClient.ReadSecret(vaultCtx, cfg.Vault.KVPath, "signing_key")
		cancel()
		if err != nil {
			slog.Error("Failed to read signing key from Vault", "error", err)
			os.Exit(1)
		}
		slog.Info("Document signing key loaded from Vault", "path", cfg.Vault.KVPath)
	}
	if signingKey == "" {
		slog.Error("No document signing key configured")
		os.Exit(1)
	}
	store := docstore.New(fileRepo, signingKey, cfg.Docstore.SignedURLTTL)

	// Label registry client
	labelClient := label.NewHTTPClient(&cfg.Label)

	// Email notifier behind the outbox
	emailService := email.NewService(&cfg.Email)
	notifier := email.NewNotifier(emailService)

	// Initialize services
	authService := service.NewAuthService(userRepo, authSvc)
	assessmentService := service.NewAssessmentService(
		db.DB, assessmentRepo, employeeRepo, campaignRepo, companyRepo,
		institutionRepo, auditRepo, outboxRepo, store, m)
	syncService := service.NewSyncService(
		db.DB, labelClient, assessmentRepo, employeeRepo, campaignRepo,
		companyRepo, auditRepo, m)
	reviewService := service.NewReviewService(
		db.DB, assessmentRepo, employeeRepo, campaignRepo, companyRepo,
		institutionRepo, auditRepo, outboxRepo, m)
	campaignService := service.NewCampaignService(
		db.DB, campaignRepo, assessmentRepo, companyRepo, auditRepo, outboxRepo)

	// Notification dispatcher drains the outbox after commits
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	dispatcher := outbox.NewDispatcher(outboxRepo, notifier, m, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
	go dispatcher.Run(dispatcherCtx)

	// Scheduler for reminders and summaries
	sched := scheduler.NewScheduler(campaignRepo, assessmentRepo, companyRepo, institutionRepo, outboxRepo, &cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(authSvc)
	rbacMw := middleware.NewRBACMiddleware()
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	assessmentHandler := handlers.NewAssessmentHandler(assessmentService, syncService, cfg.Docstore.MaxUploadSize)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	fileHandler := handlers.NewFileHandler(store, assessmentService)
	auditHandler := handlers.NewAuditHandler(auditRepo)

	mux := http.NewServeMux()

	// Auth endpoints
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.Handle("GET /api/v1/auth/me",
		authMw.Authenticate(
			http.HandlerFunc(authHandler.Me),
		),
	)

	// Campaign endpoints
	mux.Handle("POST /api/v1/campaigns",
		authMw.Authenticate(
			rbacMw.RequireRole("admin")(
				http.HandlerFunc(campaignHandler.Create),
			),
		),
	)
	mux.Handle("GET /api/v1/campaigns",
		authMw.Authenticate(
			http.HandlerFunc(campaignHandler.List),
		),
	)
	mux.Handle("GET /api/v1/campaigns/{id}",
		authMw.Authenticate(
			http.HandlerFunc(campaignHandler.Get),
		),
	)
	mux.Handle("POST /api/v1/campaigns/{id}/close",
		authMw.Authenticate(
			rbacMw.RequireRole("admin")(
				http.HandlerFunc(campaignHandler.Close),
			),
		),
	)

	// Assessment endpoints - GEIQ side
	mux.Handle("POST /api/v1/assessments",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.Create),
			),
		),
	)
	mux.Handle("GET /api/v1/assessments",
		authMw.Authenticate(
			http.HandlerFunc(assessmentHandler.List),
		),
	)
	mux.Handle("GET /api/v1/assessments/{id}",
		authMw.Authenticate(
			http.HandlerFunc(assessmentHandler.Get),
		),
	)
	mux.Handle("GET /api/v1/assessments/{id}/employees",
		authMw.Authenticate(
			http.HandlerFunc(assessmentHandler.Employees),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/sync",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.Sync),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/contracts-selection/validate",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.ValidateContractsSelection),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/contracts-selection/invalidate",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.InvalidateContractsSelection),
			),
		),
	)
	mux.Handle("PUT /api/v1/assessments/{id}/contracts/{contractID}/allowance-requested",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.SetAllowanceRequested),
			),
		),
	)
	mux.Handle("PUT /api/v1/assessments/{id}/comment",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.SetComment),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/documents/{kind}",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.UploadDocument),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/submit",
		authMw.Authenticate(
			rbacMw.RequireRole("geiq")(
				http.HandlerFunc(assessmentHandler.Submit),
			),
		),
	)

	// Review endpoints - institution side
	mux.Handle("PUT /api/v1/assessments/{id}/contracts/{contractID}/allowance-granted",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.SetAllowanceGranted),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/grants-selection/validate",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.ValidateGrantsSelection),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/grants-selection/invalidate",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.InvalidateGrantsSelection),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/decision",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.ValidateDecision),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/review",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.Review),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/fix-review",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.FixReview),
			),
		),
	)
	mux.Handle("POST /api/v1/assessments/{id}/final-review",
		authMw.Authenticate(
			rbacMw.RequireRole("institution")(
				http.HandlerFunc(reviewHandler.FinalReview),
			),
		),
	)
	mux.Handle("GET /api/v1/assessments/{id}/result",
		authMw.Authenticate(
			http.HandlerFunc(reviewHandler.Result),
		),
	)

	// Document endpoints
	mux.Handle("GET /api/v1/assessments/{id}/documents/{kind}/url",
		authMw.Authenticate(
			http.HandlerFunc(fileHandler.SignedURL),
		),
	)
	// Access is gated by the URL signature, not a session
	mux.HandleFunc("GET "+docstore.DownloadRoute, fileHandler.Serve)

	// Audit trail
	mux.Handle("GET /api/v1/assessments/{id}/audit",
		authMw.Authenticate(
			rbacMw.RequireRole("admin")(
				http.HandlerFunc(auditHandler.ListForAssessment),
			),
		),
	)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte(`{"status":"unhealthy","database":"error"}`)); err != nil {
				slog.Error("Failed to write health check response", "error", err)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy","version":"` + cfg.App.Version + `"}`)); err != nil {
			slog.Error("Failed to write health check response", "error", err)
		}
	})

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(
				rateLimiter.Limit(mux),
			),
		),
	)

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	stopDispatcher()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
