package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/ingest"
	"github.com/merchrank/tier-engine/internal/metrics"
	"github.com/merchrank/tier-engine/internal/scenario"
	"github.com/merchrank/tier-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Optional CSV bootstrap ---
	if dataFile := os.Getenv("DATA_FILE"); dataFile != "" {
		f, err := os.Open(dataFile)
		if err != nil {
			slog.Error("cannot open data file", "path", dataFile, "err", err)
			os.Exit(1)
		}
		accounts, err := ingest.ReadCSV(f)
		f.Close()
		if err != nil {
			slog.Error("cannot parse data file", "path", dataFile, "err", err)
			os.Exit(1)
		}
		if err := st.ReplaceAccounts(context.Background(), accounts); err != nil {
			slog.Error("cannot store population", "err", err)
			os.Exit(1)
		}
		metrics.PopulationSize.Set(float64(len(accounts)))
		slog.Info("population loaded", "path", dataFile, "accounts", len(accounts))
	}

	// --- Market share baseline ---
	shareBaseline := scenario.DefaultMarketShareBaseline
	if raw := os.Getenv("MARKET_SHARE_BASELINE"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			slog.Error("invalid MARKET_SHARE_BASELINE", "value", raw, "err", err)
			os.Exit(1)
		}
		shareBaseline = parsed
	}

	// --- WebSocket hub ---
	wsHub := scenario.NewWSHub()
	go wsHub.Run()

	// --- Scenario service ---
	svc := scenario.NewService(st, shareBaseline, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tier-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for run broadcasts.
		r.Get("/ws", wsHub.HandleWS)

		// Population management.
		r.Post("/accounts", svc.ReplaceAccounts)
		r.Get("/accounts", svc.ListAccounts)

		// Scoring.
		r.Get("/scoreboard", svc.Scoreboard)
		r.Get("/scoreboard/top", svc.TopAccounts)

		// Simulation.
		r.Post("/simulate", svc.Simulate)
		r.Get("/runs", svc.ListRuns)
		r.Get("/runs/{runID}", svc.GetRun)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tier-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down tier-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tier-engine stopped")
}
