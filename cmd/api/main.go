package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wrapdesk/internal/audit"
	"wrapdesk/internal/auth"
	"wrapdesk/internal/calls"
	"wrapdesk/internal/config"
	"wrapdesk/internal/contacts"
	"wrapdesk/internal/conversations"
	"wrapdesk/internal/httpapi"
	"wrapdesk/internal/messages"
	"wrapdesk/internal/realtime"
	"wrapdesk/internal/reporting"
	"wrapdesk/internal/routing"
	"wrapdesk/internal/schema"
	"wrapdesk/internal/team"
	"wrapdesk/internal/telephony"
	"wrapdesk/pkg/logger"
	"wrapdesk/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := schema.Migrate(db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Realtime: every instance publishes to the shared stream and serves its
	// own SSE clients from the local hub.
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, log)
	broker := realtime.NewRedisBroker(rdb, hub, realtime.BrokerConfig{
		Stream: cfg.Realtime.Stream,
		MaxLen: cfg.Realtime.StreamMaxLen,
	}, log)

	sms := telephony.NewSMSClient(telephony.SMSConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
		APIBase:    cfg.Twilio.APIBase,
	}, log)

	teamSvc := team.NewService(team.NewPostgresRepo(db))
	msgSvc := messages.NewService(messages.NewPostgresRepo(db), sms, broker)
	contactSvc := contacts.NewService(contacts.NewPostgresRepo(db), broker)
	callRepo := calls.NewPostgresRepo(db)
	callSvc := calls.NewService(callRepo, teamSvc, calls.Options{
		Engine:    routing.NewEngine(cfg.Calls.RingTimeout),
		Publisher: broker,
		Voicemail: msgSvc,
	})

	deps := dependencies{
		cfg:  cfg,
		auth: authManager,
		db:   db,
		rdb:  rdb,
		api: httpapi.Handlers{
			Auth:          authManager,
			Passwords:     auth.Passwords{Owner: cfg.Auth.OwnerPassword, Staff: cfg.Auth.StaffPassword},
			Conversations: conversations.NewService(msgSvc, contactSvc, cfg.Inbox.MessageWindow, cfg.Location()),
			Messages:      msgSvc,
			Contacts:      contactSvc,
			Calls:         callSvc,
			Team:          teamSvc,
			Reporting:     reporting.NewService(callRepo),
			Audit:         audit.NewService(audit.NewPostgresRepo(db)),
			Hub:           hub,
		},
		voice: telephony.VoiceHandler{
			Calls:              callSvc,
			URLs:               telephony.WebhookURLs{Base: cfg.App.PublicBaseURL},
			VoicemailMaxLength: cfg.Calls.VoicemailMaxLength,
		},
		sms: telephony.SMSHandler{Messages: msgSvc, Lookup: contactSvc},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	// Background workers stop with rootCtx.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := broker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("realtime broker stopped", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		calls.NewSweeper(callSvc, cfg.Calls.SweepInterval, cfg.Calls.StaleRingingAfter, log).Run(rootCtx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE responses stay open; the handler's heartbeat keeps proxies honest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	wg.Wait()
	log.Info("shutdown complete")
}
