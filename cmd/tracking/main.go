// Command tracking runs the recipient-facing listener: the open pixel
// and the unsubscribe page. Kept as a separate binary so public traffic
// never shares a port with the operator API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/civicworks/councilmail/internal/config"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/repository/memory"
	"github.com/civicworks/councilmail/internal/repository/postgres"
	"github.com/civicworks/councilmail/internal/service/campaign"
	"github.com/civicworks/councilmail/internal/service/engagement"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
	"github.com/civicworks/councilmail/internal/tracking"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	var (
		campaignRepo   campaign.Repository
		supprRepo      suppression.Repository
		engagementRepo engagement.Repository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Error("database open failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Error("database ping failed", "err", err)
			os.Exit(1)
		}
		campaignRepo = postgres.NewCampaignRepo(db)
		supprRepo = postgres.NewSuppressionRepo(db)
		engagementRepo = postgres.NewEngagementRepo(db)
	default:
		// Memory storage is process-local; a standalone tracking binary
		// on this driver only makes sense for smoke testing.
		logger.Warn("memory storage does not share state with the api server")
		campaignRepo = memory.NewCampaignRepo()
		supprRepo = memory.NewSuppressionRepo()
		engagementRepo = memory.NewEngagementRepo()
	}

	suppressionSvc := suppression.NewService(supprRepo)
	engagementSvc := engagement.NewService(engagementRepo, campaignRepo, suppressionSvc,
		cfg.Tracking.RecordBudget())
	resolver := tenant.NewResolver(cfg.Tenant.Header, cfg.Tenant.QueryParam, cfg.Tenant.Fallback)
	handler := tracking.NewHandler(engagementSvc, resolver)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.TrackingPort),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking server listening", "port", cfg.Server.TrackingPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
