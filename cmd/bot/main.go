package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"verifier_bot/internal/app"
	"verifier_bot/internal/domain/alert"
	"verifier_bot/internal/infra/config"
	"verifier_bot/internal/infra/contestdojo"
	"verifier_bot/internal/infra/discord"
	"verifier_bot/internal/infra/httpserver"
	"verifier_bot/internal/infra/logger"
	"verifier_bot/internal/infra/metrics"
	"verifier_bot/internal/infra/scheduler"
	"verifier_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	fmt.Println("ContestDojo Verifier Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"event_id":    cfg.EventID,
		"role":        cfg.VerifiedRoleName,
	}).Info("Configuration loaded")

	appMetrics := metrics.New()

	// Initialize ContestDojo directory client
	directory, err := contestdojo.NewClient(
		cfg.ContestDojoBaseURL,
		cfg.ContestDojoAPIKey,
		cfg.DirectoryTimeout,
		logger.Component("contestdojo"),
		contestdojo.WithObserver(appMetrics),
	)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not create ContestDojo client: %v", err)
	}

	// Operator alerts go to Telegram when configured
	var notifier alert.Notifier = alert.Nop{}
	if cfg.OpsAlertsEnabled() {
		opsNotifier, err := telegram.NewOpsNotifier(cfg.OpsTelegramToken, cfg.OpsTelegramChatID)
		if err != nil {
			mainLogger.Fatalf("FATAL: Could not create ops Telegram notifier: %v", err)
		}
		notifier = opsNotifier
		mainLogger.WithField("chat_id", cfg.OpsTelegramChatID).Info("Ops alerts enabled via Telegram")
	}

	session, err := discord.NewSession(cfg.BotToken, cfg.ChatTimeout, logger.Component("discord"))
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not create Discord session: %v", err)
	}

	verificationService := app.NewVerificationService(
		directory,
		session,
		notifier,
		appMetrics,
		cfg.EventID,
		cfg.VerifiedRoleName,
		logger.Component("verification"),
	)
	discord.RegisterHandlers(session, verificationService, discord.HandlerConfig{
		VerifyTrigger: cfg.VerifyTrigger,
		EventName:     cfg.EventName,
	}, logger.Component("discord_handlers"))
	mainLogger.Info("Discord handlers registered")

	roleAudit := app.NewRoleAuditService(session, notifier, cfg.VerifiedRoleName, logger.Component("role_audit"))
	auditScheduler := scheduler.NewRoleAuditScheduler(roleAudit, logger.Component("scheduler"), cfg.CronSpecRoleAudit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Open(); err != nil {
		mainLogger.Fatalf("FATAL: %v", err)
	}
	if err := auditScheduler.Start(); err != nil {
		mainLogger.Fatalf("FATAL: %v", err)
	}
	mainLogger.Info("Application setup complete. Bot and scheduler are running.")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		srv := httpserver.New(cfg.MetricsAddr, appMetrics.Registry, session.Ready, logger.Component("httpserver"))
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		mainLogger.WithError(err).Error("Background service failed")
	}

	mainLogger.Info("Shutting down application...")
	auditScheduler.Stop()
	if err := session.Close(); err != nil {
		mainLogger.WithError(err).Warn("Error closing Discord session")
	}
	mainLogger.Info("Application shut down gracefully.")
}
