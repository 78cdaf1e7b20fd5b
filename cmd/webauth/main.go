package main

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/internal/config"
	"github.com/smallbiznis/webauth/internal/csrf"
	authhandler "github.com/smallbiznis/webauth/internal/handler/auth"
	"github.com/smallbiznis/webauth/internal/handler/health"
	passwordhandler "github.com/smallbiznis/webauth/internal/handler/password"
	"github.com/smallbiznis/webauth/internal/middleware"
	"github.com/smallbiznis/webauth/internal/router"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	authService "github.com/smallbiznis/webauth/internal/service/auth"
	"github.com/smallbiznis/webauth/internal/worker"
	"github.com/smallbiznis/webauth/pkg/cache"
	"github.com/smallbiznis/webauth/pkg/logger"
	"github.com/smallbiznis/webauth/pkg/metrics"
	"github.com/smallbiznis/webauth/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}).SetGlobal()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	m := metrics.New("webauth")

	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Cache.Driver).Msg("failed to initialize cache")
	}

	client, err := accounts.New(cfg.Accounts, accounts.WithMetrics(m))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize accounts client")
	}

	// Initialize services
	apps, err := appcontext.NewService(client, store, appcontext.Config{
		Rules:        cfg.Password.Rules,
		MatchTimeout: cfg.Password.MatchTimeout,
		TTL:          cfg.Cache.TTL,
	}, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application context")
	}
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go worker.NewRulesRefresher(apps, cfg.Password.RefreshInterval, cfg.Accounts.Timeout).Start(refreshCtx)

	authSvc := authService.NewService(client, apps, cfg.Server.AuthorizeURL, m)

	csrfManager := csrf.NewManager(csrfSecret(cfg.Security.CSRFSecret), cfg.Security.CSRFTTL)

	// Initialize handlers
	pingers := map[string]health.Pinger{}
	if p, ok := store.(health.Pinger); ok {
		pingers["cache"] = p
	}
	pageHandler := authhandler.NewHandler(apps, authSvc, csrfManager, cfg.Security.CookieSecure)
	passwordHandler := passwordhandler.NewHandler(apps, authSvc)
	healthHandler := health.NewHandler(client, m.Registry, pingers)

	rateLimit, apiRateLimit := rate.Limit(0), rate.Limit(0)
	if cfg.RateLimit.Enabled {
		rateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		apiRateLimit = rate.Limit(cfg.RateLimit.APIRequestsPerSecond)
	}

	r := router.NewRouter(pageHandler, passwordHandler, healthHandler, csrfManager, m, router.RouterConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		RateLimit:      rateLimit,
		RateBurst:      cfg.RateLimit.Burst,
		APIRateLimit:   apiRateLimit,
		APIRateBurst:   cfg.RateLimit.APIBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSConfig:     middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins),
		Security:       middleware.DefaultSecurityConfig(),
	})
	r.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("accounts", cfg.Accounts.BaseURL).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	stopRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close cache")
		}
	}

	log.Info().Msg("server exited properly")
}

// csrfSecret returns the configured secret or a random one. A random secret
// invalidates open forms on restart and differs between replicas.
func csrfSecret(configured string) []byte {
	if configured != "" {
		return []byte(configured)
	}
	log.Warn().Msg("security.csrf_secret is not set, using a random secret")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal().Err(err).Msg("failed to generate csrf secret")
	}
	return secret
}
