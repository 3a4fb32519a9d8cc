package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/flap-ai/flapd/internal/adapter/httpapi"
	"github.com/flap-ai/flapd/internal/adapter/identitytoolkit"
	fotel "github.com/flap-ai/flapd/internal/adapter/otel"
	"github.com/flap-ai/flapd/internal/adapter/postgres"
	"github.com/flap-ai/flapd/internal/config"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/logger"
	"github.com/flap-ai/flapd/internal/middleware"
	"github.com/flap-ai/flapd/internal/port/identity"
	"github.com/flap-ai/flapd/internal/port/provider"
	"github.com/flap-ai/flapd/internal/resilience"
	"github.com/flap-ai/flapd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"persistence", cfg.Postgres.DSN != "",
		"auth", cfg.Identity.APIKey != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownTelemetry, err := fotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := fotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	var conversations *service.ConversationService
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		conversations = service.NewConversationService(postgres.NewDocStore(pool), log)
		log.Info("postgres connected")
	} else {
		log.Info("no DATABASE_URL; conversation persistence disabled")
	}

	var verifier identity.Verifier
	if cfg.Identity.APIKey != "" {
		v, err := identitytoolkit.New(cfg.Identity.APIKey,
			identitytoolkit.WithCacheTTL(cfg.Identity.CacheTTL),
			identitytoolkit.WithBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)),
		)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		defer v.Close()
		verifier = v
	} else {
		log.Info("no IDENTITY_API_KEY; auth disabled, requests run as anonymous")
	}

	// --- Services ---
	registry := buildRegistry(cfg.Providers, log)
	engines := buildEngines(cfg.Search)

	// Tool calling rides on the OpenAI wire format; openai and grok both
	// speak it. The agent activates when either is configured.
	var agent *service.SearchAgent
	for _, id := range []chat.ProviderID{chat.ProviderOpenAI, chat.ProviderGrok} {
		if model, ok := registry.Get(id).(provider.ToolCapable); ok {
			breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
			agent = service.NewSearchAgent(model, engines, breaker, metrics, cfg.Agent.MaxTurns, log)
			break
		}
	}

	chatSvc := service.NewChatService(registry, agent, conversations, metrics, log)

	// --- HTTP ---
	handlers := &httpapi.Handlers{
		Chat:      chatSvc,
		Providers: registry.IDs(),
		Search:    agent != nil,
		Logger:    log,
	}

	rl := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rl.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(httpapi.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(httpapi.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(rl.Handler)
	r.Use(fotel.HTTPMiddleware(cfg.Logging.Service))

	httpapi.MountRoutes(r, handlers, verifier)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streams stay open well past a normal request; no WriteTimeout.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
