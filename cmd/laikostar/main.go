package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/handlers"
	"laikostar/internal/httpserver"
	"laikostar/internal/logging"
	"laikostar/internal/mailer"
	"laikostar/internal/receipts"
	"laikostar/internal/scheduler"
	"laikostar/internal/service"
	"laikostar/internal/store"
)

func main() {
	var cfg config.Config
	if err := cfg.ParseFlags(); err != nil {
		fmt.Println("Server configuration error:", err)
		os.Exit(1)
	}
	logging.Logg = logging.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := run(&cfg); err != nil {
		logging.Logg.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := &store.Database{}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.NewStorage(initCtx, cfg.DBDsn); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	saver, err := receipts.New(initCtx, cfg)
	if err != nil {
		return fmt.Errorf("receipt storage: %w", err)
	}

	policy, err := service.NewPolicy(cfg)
	if err != nil {
		return err
	}

	var ledger *service.Ledger
	sender := &mailer.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	}
	mail := mailer.NewDispatcher(context.Background(), sender, cfg.MailWorkers, func(msg mailer.Message, err error) {
		reportCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ledger.ReportUndelivered(reportCtx, msg.To)
	})
	ledger = service.New(db, mail, policy)
	mail.Start()
	defer mail.Stop()

	jobs := scheduler.New(ctx, policy.Location, 10*time.Minute)
	if err := jobs.Add("commission-release", cfg.CommissionCron, ledger.ReleaseCommissions); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	server, err := httpserver.New(cfg, handlers.NewServer(ledger, saver, db.Ping))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	server.Start(ctx)

	<-ctx.Done()
	logging.Logg.Info("Shutdown signal received")
	return server.Shutdown(context.Background())
}
