package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Guardefi/landing1.2-sub002/internal/config"
	"github.com/Guardefi/landing1.2-sub002/internal/db"
	"github.com/Guardefi/landing1.2-sub002/internal/handlers"
	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
	"github.com/Guardefi/landing1.2-sub002/internal/middleware"
	"github.com/Guardefi/landing1.2-sub002/internal/mirror"
	"github.com/Guardefi/landing1.2-sub002/internal/repo"
	"github.com/Guardefi/landing1.2-sub002/internal/scheduler"
)

func main() {

	cfg := config.Load()

	setupLogger(cfg.LogFormat)

	if cfg.Env == "prod" && cfg.JWTSecret == "supersecretkey" {
		log.Fatal("JWT_SECRET must be set in prod")
	}

	database, err := db.Connect(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)

	if err := db.Run(databaseURL(cfg)); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("database ready", "host", cfg.DBHost, "name", cfg.DBName)

	signer, err := ledger.LoadSigner(cfg.SigningKeyFile, cfg.Env == "dev")
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	blockRepo := repo.NewBlockRepo(database)
	chainVerifier := ledger.NewChainVerifier(blockRepo, ledger.NewVerifier(signer.Public()))
	detector := ledger.NewAnomalyDetector(cfg.AnomalyWindow, cfg.AnomalyThreshold)

	var docs mirror.DocumentStore = mirror.Noop{}
	if cfg.MirrorEndpoint != "" {
		docs = mirror.NewHTTPStore(cfg.MirrorEndpoint, cfg.MirrorTimeout)
		slog.Info("secondary ledger mirroring enabled", "endpoint", cfg.MirrorEndpoint)
	} else {
		slog.Info("secondary ledger mirroring disabled")
	}
	mirrorer := ledger.NewMirrorer(blockRepo, docs)

	pipeline := ledger.NewPipeline(blockRepo, signer, mirrorer, detector, cfg.IngestQueueSize)
	pipeline.Run()

	stopJobs := scheduler.Run(cfg.VerifyCronSpec, chainVerifier, mirrorer, detector, cfg.MirrorEndpoint != "")

	router := buildRouter(cfg, pipeline, blockRepo, chainVerifier)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("starting server", "port", cfg.Port, "tls", cfg.TLSCertFile != "")
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	// Drain the ingestion queue so accepted events reach the chain.
	pipeline.Close()
	stopJobs()
	database.Close()
}

func buildRouter(cfg config.Config, pipeline *ledger.Pipeline, blockRepo *repo.BlockRepo, chainVerifier *ledger.ChainVerifier) http.Handler {
	eventHandler := &handlers.EventHandler{Pipeline: pipeline}
	blockHandler := &handlers.BlockHandler{Repo: blockRepo}
	verifyHandler := &handlers.VerifyHandler{Verifier: chainVerifier}
	authHandler := &handlers.AuthHandler{
		APIToken:    cfg.APIToken,
		Secret:      []byte(cfg.JWTSecret),
		ExpireHours: cfg.JWTExpireHours,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLog)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.TLSCertFile != ""))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthRateLimiter().Middleware)
		r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
		r.Post("/auth/token", authHandler.Token)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware([]byte(cfg.JWTSecret)))

		r.Group(func(r chi.Router) {
			// 100 submissions/s per client IP, bursts of 50.
			r.Use(middleware.NewIPRateLimiter(rate.Limit(100), 50).Middleware)
			r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
			r.Post("/v1/events", eventHandler.Submit)
		})

		r.Get("/v1/blocks", blockHandler.ListBlocks)
		r.Get("/v1/blocks/{number}", blockHandler.GetBlock)
		r.Get("/v1/events/{id}", blockHandler.GetEvent)
		r.Get("/v1/chain", blockHandler.GetChain)
		r.With(middleware.MaxBytes(middleware.DefaultMaxBodyBytes)).Post("/v1/verify", verifyHandler.Verify)
	})

	return r
}

func setupLogger(format string) {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

// databaseURL builds the postgres DSN used by the migration runner.
func databaseURL(cfg config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(cfg.DBUser), url.QueryEscape(cfg.DBPass),
		cfg.DBHost, cfg.DBPort, cfg.DBName)
}
