// Command server runs the operator API (lists, contacts, campaigns,
// suppression, campaign metrics) plus the public tracking endpoints, so
// a single-binary deployment records opens against the same store it
// reports metrics from.
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
	"github.com/redis/go-redis/v9"

	"github.com/civicworks/councilmail/internal/api"
	"github.com/civicworks/councilmail/internal/config"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/distlock"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/repository/memory"
	"github.com/civicworks/councilmail/internal/repository/postgres"
	"github.com/civicworks/councilmail/internal/service/campaign"
	"github.com/civicworks/councilmail/internal/service/contacts"
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

	// Storage backend is chosen exactly once at startup.
	var (
		contactRepo    contacts.Repository
		campaignRepo   campaign.Repository
		supprRepo      suppression.Repository
		engagementRepo engagement.Repository
		db             *sql.DB
	)
	switch cfg.Storage.Driver {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Error("database open failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Error("database ping failed", "err", err)
			os.Exit(1)
		}
		contactRepo = postgres.NewContactRepo(db)
		campaignRepo = postgres.NewCampaignRepo(db)
		supprRepo = postgres.NewSuppressionRepo(db)
		engagementRepo = postgres.NewEngagementRepo(db)
	default:
		contactRepo = memory.NewContactRepo()
		campaignRepo = memory.NewCampaignRepo()
		supprRepo = memory.NewSuppressionRepo()
		engagementRepo = memory.NewEngagementRepo()
	}
	logger.Info("storage ready", "driver", cfg.Storage.Driver)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, lock factory will fall back", "addr", cfg.Redis.Addr, "err", err)
		}
	}

	sender, err := buildSender(cfg)
	if err != nil {
		logger.Error("mailer init failed", "err", err)
		os.Exit(1)
	}

	contactsSvc := contacts.NewService(contactRepo)
	suppressionSvc := suppression.NewService(supprRepo)
	campaignSvc := campaign.NewService(campaignRepo, contactRepo, suppressionSvc, sender,
		distlock.NewFactory(rdb, db), campaign.Options{
			BatchSize:          cfg.Dispatch.BatchSize,
			MaxConcurrent:      cfg.Dispatch.MaxConcurrent,
			MaxRetries:         cfg.Dispatch.MaxRetries,
			RetryBaseDelay:     cfg.Dispatch.RetryBaseDelay(),
			SendBudget:         cfg.Dispatch.SendBudget(),
			ProviderRatePerSec: cfg.Dispatch.ProviderRatePerSec,
			TrackingBaseURL:    cfg.Tracking.BaseURL,
		})
	engagementSvc := engagement.NewService(engagementRepo, campaignRepo, suppressionSvc,
		cfg.Tracking.RecordBudget())
	resolver := tenant.NewResolver(cfg.Tenant.Header, cfg.Tenant.QueryParam, cfg.Tenant.Fallback)
	trackingHandler := tracking.NewHandler(engagementSvc, resolver)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewServer(contactsSvc, campaignSvc, suppressionSvc, engagementSvc, trackingHandler, resolver, cfg.Server.CORSOrigins).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Dispatch.SendBudget() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("api server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func buildSender(cfg *config.Config) (mailer.Sender, error) {
	if cfg.Mailer.Driver == "ses" {
		return mailer.NewSESSender(context.Background(),
			cfg.Mailer.AWSRegion, cfg.Mailer.AWSAccessKey, cfg.Mailer.AWSSecretKey,
			cfg.Mailer.FromName, cfg.Mailer.FromEmail)
	}
	return mailer.NewLogSender(), nil
}
