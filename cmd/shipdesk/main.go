package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/carrier"
	"github.com/hybridz/shipdesk-whatsapp/internal/config"
	"github.com/hybridz/shipdesk-whatsapp/internal/crm"
	"github.com/hybridz/shipdesk-whatsapp/internal/gateway"
	"github.com/hybridz/shipdesk-whatsapp/internal/intent"
	"github.com/hybridz/shipdesk-whatsapp/internal/profile"
	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
	"github.com/hybridz/shipdesk-whatsapp/internal/router"
	"github.com/hybridz/shipdesk-whatsapp/internal/store"
	"github.com/hybridz/shipdesk-whatsapp/internal/track"
	"github.com/hybridz/shipdesk-whatsapp/internal/webhook"
	"github.com/hybridz/shipdesk-whatsapp/internal/whatsapp"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("loading configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.State.Dir, 0o700); err != nil {
		log.Fatal("creating state directory", zap.Error(err))
	}
	db, err := store.Open(filepath.Join(cfg.State.Dir, "shipdesk.db"))
	if err != nil {
		log.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	wa := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.SendRetries, log.Named("whatsapp"))

	interp, err := intent.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, log.Named("intent"))
	if err != nil {
		log.Fatal("connecting to language model", zap.Error(err))
	}

	var rateClient rate.RateClient
	var trackClient track.TrackClient
	if cfg.Carrier.APIKey != "" {
		rateClient = carrier.NewClient(cfg.Carrier.APIKey, cfg.Carrier.SecretKey,
			cfg.Carrier.BaseURL, log.Named("carrier"))
		trackClient = carrier.NewClient(cfg.Carrier.TrackAPIKey, cfg.Carrier.TrackSecretKey,
			cfg.Carrier.BaseURL, log.Named("carrier-track"))
	} else {
		log.Warn("carrier credentials missing, only fixed-lane quotes will work")
	}

	engine := rate.NewEngine(cfg.Pricing, rateClient, cfg.Carrier.AccountNumber, log.Named("rate"))
	tracker := track.NewTracker(trackClient, log.Named("track"))

	crmClient := crm.NewClient(cfg.CRM.URL, cfg.CRM.Database, cfg.CRM.Username, cfg.CRM.APIKey,
		time.Duration(cfg.CRM.TimeoutSeconds)*time.Second, log.Named("crm"))
	if !crmClient.Configured() {
		log.Warn("crm credentials missing, tickets and the user directory are disabled")
	}

	var dir profile.Directory
	if crmClient.Configured() {
		dir = crmClient
	}
	profiles := profile.NewManager(dir, db, cfg.CRM.SpreadsheetID,
		time.Duration(cfg.Profile.RecheckMinutes)*time.Minute, log.Named("profile"))

	console := gateway.NewConsole(cfg.Gateway.Addr, cfg.Gateway.Token, wa, log.Named("console"))

	r := &router.Router{
		Messenger:      wa,
		Interp:         interp,
		Quoter:         engine,
		Tracker:        tracker,
		CRM:            crmClient,
		Profiles:       profiles,
		Store:          db,
		Events:         console,
		HelpdeskTeamID: cfg.CRM.HelpdeskTeamID,
		SalesTeamID:    cfg.CRM.SalesTeamID,
		HistoryLimit:   cfg.Profile.HistoryLimit,
		Log:            log.Named("router"),
	}

	srv := webhook.NewServer(cfg.Webhook.Addr, cfg.Webhook.VerifyToken, cfg.Webhook.Secret,
		func(ctx context.Context, msg whatsapp.Message, contactName string) {
			r.Process(ctx, msg, contactName)
		}, log.Named("webhook"))
	srv.StatsFn = db.Stats

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start(ctx) }()
	go func() { errCh <- console.Start(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", zap.Error(err))
		}
		stop()
	}
	// let the servers finish their shutdowns
	time.Sleep(200 * time.Millisecond)
}
