package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/settlement-engine/internal/api"
	"github.com/atmx/settlement-engine/internal/bank"
	"github.com/atmx/settlement-engine/internal/config"
	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/limits"
	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the settlement HTTP and WebSocket API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	backend, cleanup, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()
	st := store.New(backend)

	// --- Engine ---
	eng, err := newEngine(st, cfg.Marketplace, cfg.Limits)
	if err != nil {
		return err
	}
	if err := eng.Init(ctx); err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	wsHub := api.NewWSHub()
	eng.SetEmitter(events.Fanout{wsHub})
	svc := api.NewService(eng)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
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
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for committed settlement events.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("settlement-engine listening", "port", cfg.HTTP.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down settlement-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("settlement-engine stopped")
	return err
}

// openBackend builds the configured backend, optionally fronted by Redis.
// Cleanup funcs run in reverse order.
func openBackend(ctx context.Context, cfg config.StorageConfig) (store.Backend, []func(), error) {
	var backend store.Backend
	var cleanup []func()

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresBackend(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		backend = pg
		slog.Info("connected to PostgreSQL")

	case config.DriverLevelDB:
		lb, err := store.NewLevelBackend(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { lb.Close() })
		backend = lb
		slog.Info("opened LevelDB", "path", cfg.Path)

	default:
		slog.Warn("using in-memory store (data will not persist)")
		backend = store.NewMemoryBackend()
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			for _, fn := range cleanup {
				fn()
			}
			return nil, nil, fmt.Errorf("invalid storage.redis_url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		backend = store.NewCachedBackend(backend, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}
	return backend, cleanup, nil
}

func newEngine(st *store.Store, m config.MarketplaceConfig, l config.LimitsConfig) (*marketplace.Engine, error) {
	custody, err := model.ParseAddress(m.Custody)
	if err != nil {
		return nil, err
	}
	treasury, err := model.ParseAddress(m.Treasury)
	if err != nil {
		return nil, err
	}
	admin, err := model.ParseAddress(m.Admin)
	if err != nil {
		return nil, err
	}

	ledger := bank.New()
	metadata, err := host.NewCachedMetadata(host.Registry{}, m.MetadataCache)
	if err != nil {
		return nil, err
	}
	deps := marketplace.Deps{
		Bank:      ledger,
		Metadata:  metadata,
		Registrar: host.Registry{},
		Limiter:   limits.NewOfferLimiter(l.MaxGlobalOffersPerOwner, l.MaxGlobalOffersPerCollection),
	}
	if m.WrappedToken != "" {
		liquidity, err := model.ParseAddress(m.WrapLiquidity)
		if err != nil {
			return nil, err
		}
		deps.Normalizer = host.NewWrapNormalizer(ledger, m.NativeToken, m.WrappedToken, liquidity, custody)
	}
	if m.SignerPublicKey != "" {
		verifier, err := host.NewEd25519Verifier(m.SignerPublicKey)
		if err != nil {
			return nil, fmt.Errorf("marketplace.signer_public_key: %w", err)
		}
		deps.Verifier = verifier
	}

	return marketplace.NewEngine(st, deps, marketplace.Config{
		Custody:        custody,
		Treasury:       treasury,
		Admin:          admin,
		NativeToken:    m.NativeToken,
		CutPercentage:  m.CutBps,
		AcceptedTokens: m.AcceptedTokens,
	}), nil
}
