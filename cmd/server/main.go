package main

import (
	"context"
	"encoding/json"
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
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/synthos/mint-engine/internal/config"
	"github.com/synthos/mint-engine/internal/events"
	"github.com/synthos/mint-engine/internal/metrics"
	"github.com/synthos/mint-engine/internal/oracle"
	"github.com/synthos/mint-engine/internal/position"
	"github.com/synthos/mint-engine/internal/registry"
	"github.com/synthos/mint-engine/internal/risk"
	"github.com/synthos/mint-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
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

	// --- Oracle client ---
	var orc oracle.Oracle
	if cfg.Oracle.PriceURL != "" {
		collateralURL := cfg.Oracle.CollateralURL
		if collateralURL == "" {
			collateralURL = cfg.Oracle.PriceURL
		}
		orc = oracle.NewHTTPOracle(cfg.Oracle.PriceURL, collateralURL, nil)
		slog.Info("oracle configured", "price_url", cfg.Oracle.PriceURL, "collateral_url", collateralURL)
	} else {
		slog.Warn("ORACLE_URL not set, using static oracle (prices must be seeded by hand)")
		orc = oracle.NewStaticOracle()
	}
	orc = oracle.Instrumented(orc)

	// --- Per-owner risk limits ---
	var limiter *risk.ExposureLimiter
	if cfg.Risk.MaxPositionsPerOwner > 0 || cfg.Risk.MaxAssetExposure.IsPositive() {
		limiter = risk.NewExposureLimiter(cfg.Risk.MaxPositionsPerOwner, cfg.Risk.MaxAssetExposure)
		slog.Info("per-owner limits enabled",
			"max_positions", cfg.Risk.MaxPositionsPerOwner,
			"max_asset_exposure", cfg.Risk.MaxAssetExposure.String(),
		)
	}

	// --- Event fan-out ---
	wsHub := events.NewWSHub()
	go wsHub.Run()

	fanout := events.Fanout{wsHub}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			slog.Error("NATS connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, nc.Close)
		fanout = append(fanout, events.NewNATSPublisher(nc))
		slog.Info("NATS event publishing enabled")
	}

	// --- Position service ---
	svc := position.NewService(st, registry.New(st), orc, limiter, fanout)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
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
		w.Write([]byte(`{"status":"ok","service":"mint-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time position events.
		r.Get("/ws", wsHub.HandleWS)

		// Engine parameters.
		r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"base_denom":                 cfg.Engine.BaseDenom,
				"protocol_fee_rate":          cfg.Engine.ProtocolFeeRate.String(),
				"min_collateral_ratio_floor": registry.MinCollateralRatioFloor.String(),
				"fee_collector":              cfg.Engine.FeeCollector,
				"token_factory":              cfg.Engine.TokenFactory,
				"staking_module":             cfg.Engine.StakingModule,
				"lock_module":                cfg.Engine.LockModule,
				"oracle_price_url":           cfg.Oracle.PriceURL,
				"oracle_collateral_url":      cfg.Oracle.CollateralURL,
			})
		})

		// Position lifecycle.
		r.Post("/positions", svc.HandleOpenPosition)
		r.Get("/positions", svc.HandleListPositions)
		r.Get("/positions/next-idx", svc.HandleNextPositionIdx)
		r.Get("/positions/{positionIdx}", svc.HandleGetPosition)
		r.Post("/positions/{positionIdx}/deposit", svc.HandleDeposit)
		r.Post("/positions/{positionIdx}/withdraw", svc.HandleWithdraw)
		r.Post("/positions/{positionIdx}/mint", svc.HandleMint)

		// Asset registry administration.
		r.Post("/assets", svc.HandleRegisterAsset)
		r.Post("/assets/migrate", svc.HandleMigrateAsset)
		r.Get("/assets/{token}", svc.HandleGetAssetConfig)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("mint-engine listening", "port", cfg.Port)
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

	slog.Info("shutting down mint-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("mint-engine stopped")
}
