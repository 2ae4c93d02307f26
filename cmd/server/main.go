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

	"github.com/omarkets/exchange-engine/internal/config"
	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/feed"
	"github.com/omarkets/exchange-engine/internal/gateway"
	"github.com/omarkets/exchange-engine/internal/journal"
	"github.com/omarkets/exchange-engine/internal/metrics"
	"github.com/omarkets/exchange-engine/internal/model"
	"github.com/omarkets/exchange-engine/internal/queue"
	"github.com/omarkets/exchange-engine/internal/sequencer"
)

// bookFanout forwards book updates to every configured publisher.
type bookFanout []engine.BookPublisher

func (f bookFanout) PublishBook(symbol string, snap model.BookSnapshot) {
	for _, p := range f {
		p.PublishBook(symbol, snap)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Fill journal ---
	var sink journal.Sink
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pgSink := journal.NewPostgresSink(pool)
		if err := pgSink.EnsureSchema(context.Background()); err != nil {
			slog.Error("journal schema setup failed", "err", err)
			os.Exit(1)
		}
		sink = pgSink
		slog.Info("fill journal writing to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, fill journal is in-memory only")
		sink = journal.NewMemorySink()
	}
	writer := journal.NewWriter(sink, cfg.JournalDepth)
	go writer.Run(runCtx)

	// --- WebSocket feed ---
	hub := feed.NewHub()
	go hub.Run()

	// --- Command transport ---
	var (
		enq     queue.Enqueuer
		src     queue.Source
		rsp     queue.Responder
		bookPub engine.BookPublisher
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		rt := queue.NewRedisTransport(rdb, cfg.QueueKey)
		go rt.Run(runCtx)
		enq, src, rsp = rt, rt, rt
		bookPub = bookFanout{hub, rt}
		slog.Info("Redis command transport enabled", "queue", cfg.QueueKey)
	} else {
		slog.Info("using in-process command transport")
		ct := queue.NewChannelTransport(cfg.QueueDepth)
		enq, src, rsp = ct, ct, ct
		bookPub = hub
	}

	// --- Engine + sequencer ---
	eng := engine.New(bookPub, writer)
	seq := sequencer.New(eng, src, rsp)
	go func() {
		if err := seq.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("sequencer exited", "err", err)
			os.Exit(1)
		}
	}()

	// --- HTTP router ---
	gw := gateway.New(enq, cfg.AwaitTimeout)

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
		w.Write([]byte(`{"status":"ok","service":"exchange-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for real-time order-book updates.
	r.Get("/ws", hub.HandleWS)

	r.Mount("/", gw.Router())

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("exchange-engine listening", "port", cfg.Port)
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

	slog.Info("shutting down exchange-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stopWorkers()
	fmt.Println("exchange-engine stopped")
}
