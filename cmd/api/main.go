package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/planchoque/portal/internal/alert"
	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/config"
	"github.com/planchoque/portal/internal/db"
	"github.com/planchoque/portal/internal/guard"
	internalhttp "github.com/planchoque/portal/internal/http"
	"github.com/planchoque/portal/internal/metrics"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/security"
	"github.com/planchoque/portal/internal/service"
	"github.com/planchoque/portal/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api terminó con error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	queries := repo.New(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(queries, redisClient, jwtManager, cfg.JWTRefreshTTL)
	sessions := session.NewProvider(jwtManager, redisClient, cfg.Guard.SessionLookup, log.With().Str("component", "session").Logger())

	m := metrics.New()

	alerts := alert.NewStore(cfg.Guard.AlertTTL)
	defer alerts.Close()

	if cfg.SecurityLog.URL == "" {
		log.Info().Msg("SECURITY_LOG_URL vacío: accesos denegados solo se guardan en la base")
	}
	logClients := security.MultiLogClient{
		security.NewAuditLogClient(queries),
		security.NewHTTPLogClient(cfg.SecurityLog.URL, cfg.SecurityLog.Token, cfg.SecurityLog.Timeout),
	}
	reporter := security.NewReporter(alerts, logClients, security.Options{
		SendTimeout:   cfg.SecurityLog.Timeout,
		RatePerSecond: cfg.SecurityLog.RequestsPerSecond,
		Burst:         cfg.SecurityLog.Burst,
		Metrics:       m,
	}, log.With().Str("component", "security").Logger())

	protector := guard.NewProtector(reporter, guard.Config{
		LoginPath:        cfg.Guard.LoginPath,
		UnauthorizedPath: cfg.Guard.UnauthorizedPath,
		Metrics:          m,
	}, log.With().Str("component", "guard").Logger())

	handler := internalhttp.NewRouter(internalhttp.Deps{
		Config:    cfg,
		DB:        pool,
		Redis:     redisClient,
		Auth:      authService,
		Sessions:  sessions,
		Alerts:    alerts,
		Protector: protector,
		Audit:     queries,
		Metrics:   m,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API escuchando en :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("cerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "plan-choque").Logger()
}
