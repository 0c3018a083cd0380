package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docwatch/config"
	"docwatch/database"
	"docwatch/docsource"
	"docwatch/ledger"
	"docwatch/rules"
	"docwatch/snapshot"
	"docwatch/tracking"
	"docwatch/web"
)

func main() {
	ctx := context.Background()

	configFile := os.Getenv("DOCWATCH_ENV_FILE")
	if configFile == "" {
		if _, err := os.Stat("settings.env"); err == nil {
			configFile = "settings.env"
		}
	}
	cfg := config.LoadEnvConfig(configFile)

	if len(os.Args) > 1 && os.Args[1] == "reset-db" {
		if err := database.ResetDatabase(ctx, cfg.ManagementDSN, cfg.DatabaseDSN, "docwatch"); err != nil {
			log.Fatalf("reset database: %v", err)
		}
		return
	}

	db := database.NewDatabase(cfg.DatabaseDSN)
	if err := db.Connect(ctx); err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()
	store := database.NewClient(db.Pool())

	platform := docsource.NewClient(cfg.PlatformBaseURL, cfg.PlatformToken, cfg.FetchAttempts, cfg.FetchRetryDelay)

	ledgerSvc := ledger.NewService(store)
	snapshots := snapshot.NewService(store, snapshot.Config{
		AllowedDocTypes:     cfg.AllowedDocTypes,
		MaxDocSizeBytes:     cfg.MaxDocSizeBytes,
		MinCompressionRatio: cfg.MinCompressionRatio,
		RetentionDays:       cfg.RetentionDays,
	})

	engine := rules.NewEngine(store)
	engine.RegisterBuiltinActions(platform, &http.Client{Timeout: cfg.WebhookTimeout})
	queue := rules.NewQueue(engine, cfg.QueueBatchSize, cfg.QueueDrainEvery)

	reactor := tracking.NewChangeReactor(platform, snapshots, queue, cfg.DiffTimeout)
	poller := tracking.NewPoller(tracking.Config{
		PollInterval:       cfg.PollInterval,
		DebounceWindow:     cfg.DebounceWindow,
		MaxConcurrentPolls: cfg.MaxConcurrentPolls,
	}, platform, platform, ledgerSvc, reactor)

	queue.Start()
	defer queue.Stop()

	if err := poller.Restore(ctx); err != nil {
		log.Fatalf("restore tracked documents: %v", err)
	}
	defer poller.Stop()

	server := web.NewServer(cfg.ListenAddr, poller, ledgerSvc, snapshots, engine, queue)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("web server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down")
}
