package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/otpearn/otpearn-server/internal/api"
	"github.com/otpearn/otpearn-server/internal/config"
	"github.com/otpearn/otpearn-server/internal/logger"
	"github.com/otpearn/otpearn-server/internal/notify"
	"github.com/otpearn/otpearn-server/internal/poller"
	"github.com/otpearn/otpearn-server/internal/portal"
	"github.com/otpearn/otpearn-server/internal/repository"
	"github.com/otpearn/otpearn-server/internal/service"
	"github.com/otpearn/otpearn-server/internal/state"
)

func main() {
	log := logger.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to set up database")
	}
	defer db.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create notifier: AMQP when a broker is configured, log-only otherwise
	var notifier notify.Notifier
	if cfg.Notify.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(
			cfg.Notify.AMQPURL, cfg.Notify.Exchange,
			cfg.Auth.AdminID, cfg.Auth.GroupID, log)
		if err != nil {
			log.WithError(err).Fatal("failed to set up notifier")
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	// Create service
	svc := service.NewDefaultService(
		repo, notifier, log,
		cfg.Auth.JWTSecret, cfg.Auth.AdminKey,
		cfg.Rewards.EarnPerSMS, cfg.Rewards.MinWithdrawal)

	// Ensure the admin user exists
	if cfg.Auth.AdminID != 0 {
		if err := svc.Register(context.Background(), cfg.Auth.AdminID, "admin"); err != nil {
			log.WithError(err).Warn("failed to ensure admin user")
		}
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the background poller when the portal is configured
	var syncer api.InventorySyncer
	if cfg.Portal.Email != "" {
		client, err := portal.NewClient(cfg.Portal, log)
		if err != nil {
			log.WithError(err).Fatal("failed to set up portal client")
		}

		p := poller.New(client, svc, log,
			cfg.Poll.OTPInterval, cfg.Poll.SessionInterval)
		syncer = p

		// Initial inventory sync, best-effort
		if added, err := p.SyncInventoryOnce(ctx); err != nil {
			log.WithError(err).Warn("initial inventory sync failed")
		} else {
			log.WithField("synced", added).Info("initial inventory sync completed")
		}

		go p.Run(ctx)
	} else {
		log.Warn("portal not configured, polling disabled")
	}

	// Create API handler
	handler := api.NewHandler(svc, state.NewStore(), syncer)

	// Set up Gin router
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", serverAddr).Info("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}

	log.Info("graceful shutdown complete")
}
