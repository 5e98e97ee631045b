package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"halo-bridge/internal/commerce"
	"halo-bridge/internal/config"
	"halo-bridge/internal/db"
	"halo-bridge/internal/reconcile"
	"halo-bridge/internal/state"
)

func main() {
	var interval time.Duration
	flag.DurationVar(&interval, "interval", 0, "Rerun the reconciliation pass at this interval; 0 runs once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := log.New(os.Stdout, "[reconciler] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()
	audit := state.NewPostgres(pool)

	if oauth1, bearer := cfg.CommerceAuthMode(); oauth1 == bearer {
		logger.Fatalf("commerce auth: configure exactly one of OAuth1 and bearer credentials")
	}
	client, err := commerce.New(cfg.Commerce.BaseURL, commerce.Auth{
		ConsumerKey:       cfg.Commerce.ConsumerKey,
		ConsumerSecret:    cfg.Commerce.ConsumerSecret,
		AccessToken:       cfg.Commerce.AccessToken,
		AccessTokenSecret: cfg.Commerce.AccessTokenSecret,
		BearerToken:       cfg.Commerce.BearerToken,
		IMSOrgID:          cfg.Commerce.IMSOrgID,
		IMSClientID:       cfg.Commerce.IMSClientID,
	}, logger, cfg.DebugLogging())
	if err != nil {
		logger.Fatalf("init commerce client: %v", err)
	}

	rec, err := reconcile.New(client, audit, reconcile.Settings{
		PageSize:       cfg.ERP.PageSize,
		StatusEndpoint: cfg.ERP.OrderStatusEndpoint,
		AuthToken:      cfg.ERP.AuthToken,
		OrderIDPrefix:  cfg.Export.OrderIDPrefix,
		TimeZone:       cfg.Export.TimeZone,
	}, nil, logger)
	if err != nil {
		logger.Fatalf("init reconciler: %v", err)
	}

	if err := rec.Run(ctx); err != nil {
		logger.Fatalf("reconciliation pass: %v", err)
	}
	if interval == 0 {
		logger.Println("reconciliation pass complete")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Println("shutting down")
			return
		case <-ticker.C:
			if err := rec.Run(ctx); err != nil {
				logger.Printf("reconciliation pass: %v", err)
			}
		}
	}
}
