package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaychat/internal/ai"
	"relaychat/internal/attachment"
	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/eventbus"
	"relaychat/internal/httpapi"
	"relaychat/internal/middleware"
	"relaychat/internal/observability"
	"relaychat/internal/presence"
	"relaychat/internal/rabbitmq"
	"relaychat/internal/ratelimit"
	"relaychat/internal/search"
	"relaychat/internal/session"
	"relaychat/internal/store"
	"relaychat/internal/telemetry"
	"relaychat/internal/ws"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		dbURL   = flag.String("db-url", "", "database DSN (overrides DATABASE_URL)")
		port    = flag.Int("port", 0, "listen port (overrides PORT)")
		debug   = flag.Bool("debug", false, "enable debug logging and trace export")
		showVer = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("relaychatd " + version)
		os.Exit(0)
	}

	if err := run(*dbURL, *port, *debug); err != nil {
		slog.Error("relaychatd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(dbURLFlag string, portFlag int, debugFlag bool) error {
	cfg := config.Default()
	if dbURLFlag != "" {
		cfg.DBURL = dbURLFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if debugFlag {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	st, err := store.Connect(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer st.Close()

	registry := presence.New(cfg.MaxConnectionsPerUser)
	bus := eventbus.New(registry)
	limiter := ratelimit.New(10 * time.Minute)
	searcher := search.New(st)
	attachments := attachment.New(st)
	orchestrator := ai.New(st, bus, cfg.HFAPIKey, cfg.HFAPIURL, cfg.ContextBudgetChars)
	issuer := auth.New(cfg.JWTKey, 7*24*time.Hour)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	slog.Info("audit publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "relaychat.audit", "relaychat", envName())

	deps := session.Deps{
		Store:       st,
		Registry:    registry,
		Bus:         bus,
		Limiter:     limiter,
		Search:      searcher,
		Attachments: attachments,
		AI:          orchestrator,
		Config:      cfg,
		Audit:       audit,
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	if cfg.Debug {
		router.Use(otelgin.Middleware("relaychat"))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/ws", ws.NewHandler(issuer, deps).Handle)

	httpapi.New(st, issuer, cfg.DataDir).Register(router, middleware.RequireAuth(issuer))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("starting relaychatd", "port", cfg.Port, "debug", cfg.Debug)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envName() string {
	if v := os.Getenv("RELAYCHAT_ENV"); v != "" {
		return v
	}
	return "development"
}
