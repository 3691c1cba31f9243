package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-board/internal/bridge"
	"collab-board/internal/config"
	"collab-board/internal/handlers"
	"collab-board/internal/metrics"
	"collab-board/internal/room"
	"collab-board/internal/store"
	"collab-board/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Info("Starting instance: %s", cfg.Instance.ID)

	// Select the shared backend once at startup. When Redis is unreachable
	// the instance degrades to in-process state and an inert bridge.
	st, br := selectBackend(cfg)

	// Metrics collector and heartbeat loop
	collector := metrics.NewCollector()

	// Room manager
	manager := room.NewManager(st, br, collector, cfg.Instance.ID,
		cfg.Room.MaxContentLength, cfg.Room.DrainGrace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	go collector.Run(ctx, cfg.Metrics.Interval, st, cfg.Instance.ID)

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(manager, st, collector, cfg.Instance.ID)
	wsHandlers := handlers.NewWebSocketHandlers(manager, st, cfg.Room.MaxContentLength)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, roomHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	logger.Info("📊 Status endpoint: http://localhost%s/status", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("[%s] Server shutting down...", cfg.Instance.ID)

	// Tell every locally-connected socket before closing listeners.
	manager.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}

	if err := br.Close(); err != nil {
		logger.Error("Bridge close error: %v", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("Store close error: %v", err)
	}
	logger.Info("[%s] Server closed", cfg.Instance.ID)
}

// selectBackend pings Redis once with a bounded timeout. On success both the
// store and the bridge share the client; on failure the fallback is silent to
// callers but loud in the logs.
func selectBackend(cfg *config.Config) (store.Store, bridge.Bridge) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Redis unreachable at %s: %v", cfg.Redis.Addr, err)
		logger.Info("Falling back to in-memory store (no horizontal scaling)")
		client.Close()
		return store.NewMemoryStore(cfg.Instance.ID), bridge.NewNoopBridge()
	}

	logger.Info("Connected to Redis at %s", cfg.Redis.Addr)
	return store.NewRedisStore(client, cfg.Room.TTL, cfg.Redis.OpTimeout, cfg.Instance.ID),
		bridge.NewRedisBridge(client)
}

func setupRoutes(mux *http.ServeMux, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	mux.HandleFunc("/api/create-room", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.CreateRoom(w, r)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.Status(w, r)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
