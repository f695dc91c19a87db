package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/api"
	"github.com/dennisdiepolder/monti/pbxlive/internal/auth"
	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/callqueue"
	"github.com/dennisdiepolder/monti/pbxlive/internal/config"
	"github.com/dennisdiepolder/monti/pbxlive/internal/engine"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/ingestion"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/storage"
	"github.com/dennisdiepolder/monti/pbxlive/internal/websocket"
	"github.com/dennisdiepolder/monti/pbxlive/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("ami", cfg.AMIAddress()).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting pbxlive server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue catalog
	catalog, err := callqueue.LoadCatalog(cfg.QueueCatalogFile, cfg.ServiceLevelThreshold, cfg.ServiceLevelTarget)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load queue catalog")
	}

	// Storage and the fire-and-forget gateway in front of it
	storeCfg := storage.LoadConfig()
	store, err := storage.NewStore(ctx, storeCfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("mode", string(storeCfg.Mode)).Msg("failed to initialize store")
	}
	defer store.Close()

	gatewayCtx, stopGateway := context.WithCancel(context.Background())
	gateway := storage.NewGateway(store, cfg.PersistBuffer, log.Logger)
	go gateway.Run(gatewayCtx)

	// Broadcast sinks
	hub := websocket.NewHub(log.Logger)
	publisher := broadcast.NewPublisher(log.Logger, hub)

	if cfg.MQTTBroker != "" {
		sink, err := broadcast.NewMQTTSink(broadcast.MQTTOptions{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Str("broker", cfg.MQTTBroker).Msg("failed to connect to MQTT broker")
		}
		defer sink.Close()
		publisher.AddSink(sink)
	}

	if cfg.RedisAddr != "" {
		sink, err := broadcast.NewRedisSink(ctx, broadcast.RedisOptions{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.RedisChannelPrefix,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to Redis")
		}
		go sink.Run(ctx)
		publisher.AddSink(sink)
	}

	// The engine records through the PBX session; the session feeds the engine
	var session *ingestion.Session
	eng := engine.New(engine.Config{
		RecordingDir:           cfg.RecordingDir,
		ShiftGracePeriod:       cfg.ShiftGracePeriod,
		IdleSampleInterval:     cfg.IdleSampleInterval,
		StatsBroadcastInterval: cfg.StatsBroadcastInterval,
		StatsFlushInterval:     cfg.StatsFlushInterval,
		AgentRefreshInterval:   cfg.AgentRefreshInterval,
	}, engine.Deps{
		Persist:   gateway,
		Loader:    store,
		Recorder:  recorderFunc(func(ctx context.Context, channel, file string) error { return session.StartRecording(ctx, channel, file) }),
		Publisher: publisher,
		Catalog:   catalog,
	}, log.Logger)

	session = ingestion.NewSession(
		ingestion.AMIDialer(ami.Options{
			Addr:        cfg.AMIAddress(),
			Username:    cfg.AMIUsername,
			Secret:      cfg.AMISecret,
			DialTimeout: 10 * time.Second,
		}, log.Logger),
		eng,
		ingestion.Options{
			ReconnectDelay:       cfg.AMIReconnectDelay,
			QueueStatusInterval:  cfg.QueueStatusInterval,
			EndpointPollInterval: cfg.EndpointPollInterval,
		},
		log.Logger,
	)

	if err := eng.Restore(ctx, catalog.IDs()); err != nil {
		log.Fatal().Err(err).Msg("failed to restore state")
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	go eng.Run(engineCtx)
	for _, t := range eng.Tickers() {
		go t.Start(ctx)
	}

	hub.OnRegister(eng.Resync)
	go hub.Run(ctx)

	go session.Run(ctx)

	// HTTP surface
	authn := auth.NewAuthenticator(auth.Options{
		SkipAuth:        cfg.SkipAuth,
		VerifySignature: cfg.VerifyJWTSignature,
		Issuer:          cfg.OIDCIssuer,
	}, log.Logger)
	wsHandler := websocket.NewHandler(hub, websocket.Timeouts{
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
	}, cfg.AllowedOrigins, log.Logger)

	r := newRouter(routes{
		allowedOrigins: cfg.AllowedOrigins,
		auth:           authn,
		ws:             wsHandler,
		receiver:       event.NewReceiver(eng, log.Logger),
		roster:         api.NewRosterHandler(eng, log.Logger),
		history:        api.NewHistoryHandler(store, log.Logger),
		live:           api.NewLiveHandler(eng, log.Logger),
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop ingestion, tickers and the hub, then persist what the engine holds
	cancel()
	if err := eng.Flush(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}
	stopEngine()
	<-eng.Done()

	stopGateway()
	select {
	case <-gateway.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("persistence gateway did not drain in time")
	}

	log.Info().
		Int64("persist_dropped", gateway.Dropped()).
		Int64("persist_failed", gateway.Failed()).
		Msg("server stopped")
}

// recorderFunc adapts a function to the engine's recorder
type recorderFunc func(ctx context.Context, channel, file string) error

func (f recorderFunc) StartRecording(ctx context.Context, channel, file string) error {
	return f(ctx, channel, file)
}

// routes holds the HTTP handlers mounted by newRouter
type routes struct {
	allowedOrigins []string
	auth           *auth.Authenticator
	ws             http.Handler
	receiver       *event.Receiver
	roster         *api.RosterHandler
	history        *api.HistoryHandler
	live           *api.LiveHandler
}

func newRouter(h routes, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(h.allowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Internal routes for PBX-side integrations, not exposed publicly
	r.Route("/internal", func(r chi.Router) {
		r.Post("/event", h.receiver.HandleEvent)
		r.Get("/event/stats", h.receiver.GetStats)
		r.Post("/agents/roster", h.roster.HandleRoster)
		r.Delete("/agents/{extension}", h.roster.HandleRemove)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/ws", h.ws.ServeHTTP)

		r.Get("/api/live", h.live.GetSnapshot)
		r.Get("/api/agents/{extension}", h.live.GetAgent)
		r.Get("/api/calls/{correlationId}", h.live.GetCall)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor))
			r.Get("/api/agents/{extension}/shifts", h.history.GetShifts)
			r.Get("/api/queues/{queue}/stats", h.history.GetQueueStats)
		})
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"pbxlive"}`)
}
