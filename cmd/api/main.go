package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/auth"
	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/justsurfingit/adaudit/internal/database"
	"github.com/justsurfingit/adaudit/internal/logging"
	"github.com/justsurfingit/adaudit/internal/rules"
	"github.com/justsurfingit/adaudit/internal/server"
	"github.com/justsurfingit/adaudit/internal/services"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (.env, adaudit.yaml, ADAUDIT_* variables)
	cfg, err := config.Load(os.Getenv("ADAUDIT_CONFIG_FILE"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database Connection
	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return err
	}

	// 3. Optional integrations: Gemini and Google sign-in
	var analyzer services.AIAnalyzer
	if cfg.LLM.APIKey != "" {
		llm, err := services.NewLLMService(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			log.Warn("AI analysis disabled", zap.Error(err))
		} else {
			analyzer = llm
			log.Info("AI analysis enabled", zap.String("model", cfg.LLM.Model))
		}
	}

	var google services.GoogleExchanger
	if g := auth.NewGoogleOAuth(cfg.Auth.Google); g != nil {
		google = g
		log.Info("Google sign-in enabled", zap.String("allowed_domain", cfg.Auth.Google.AllowedDomain))
	}

	// 4. Initialize Core Services
	modifications := services.NewModificationService(db, log)
	analysis := services.NewAnalysisService(db, log, rules.NewEngine(cfg.Rules), analyzer, cfg.LLM.MaxInputBytes)
	ingest := services.NewIngestService(db, log)
	if cfg.Ingest.AnalyzeOnComplete {
		ingest.OnComplete = analysis.AnalyzeAfterIngest
	}
	authService := services.NewAuthService(db, log, cfg.Auth.SessionTTL, google)

	// 5. Start the maintenance watcher (reaper, stale runs, expired sessions)
	maintenance := services.NewMaintenanceService(modifications, ingest, authService, log)
	maintenance.Interval = cfg.Workflow.ReaperInterval
	maintenance.ProcessingTimeout = cfg.Workflow.ProcessingTimeout
	maintenance.RunTTL = cfg.Ingest.RunTTL
	maintenance.StartWatcher(ctx)

	// 6. Setup Router & Routes
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(cfg, db, log, &server.Services{
		Auth:            authService,
		Accounts:        services.NewAccountService(db),
		Analysis:        analysis,
		Recommendations: services.NewRecommendationService(db, modifications),
		Modifications:   modifications,
		Ingest:          ingest,
		Export:          services.NewExportService(db),
	})

	// 7. Serve until interrupted
	srv := &http.Server{Addr: cfg.Server.Address, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("address", cfg.Server.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
