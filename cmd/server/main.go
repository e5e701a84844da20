// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"quiz-battle/internal/auth"
	"quiz-battle/internal/battle"
	"quiz-battle/internal/config"
	"quiz-battle/internal/generation"
	"quiz-battle/internal/models"
	"quiz-battle/internal/room"
	"quiz-battle/pkg/ai"
	"quiz-battle/pkg/cache"
	"quiz-battle/pkg/database"
	"quiz-battle/pkg/logger"
	"quiz-battle/pkg/websocket"
)

// changeCache is what the server needs from its cache backend.
type changeCache interface {
	room.ChangeFeed
	battle.Leaderboard
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes := newCache(ctx, cfg.RedisAddr)

	// Initialize repositories
	authRepo := auth.NewRepository(db)
	roomRepo := room.NewRepository(db, changes)

	// Initialize services
	pipeline := generation.NewPipeline(roomRepo, ai.NewClient(cfg.AI), generation.Options{
		Workers: cfg.GenerationWorkers,
		Timeout: cfg.AITimeout,
	})
	authService := auth.NewService(authRepo, cfg.JWTSecret)
	roomService := room.NewService(roomRepo, pipeline)
	battleService := battle.NewService(roomRepo, changes, cfg.PrivateAPIKey)
	wsHub := websocket.NewHub(roomRepo)

	if cfg.PrivateAPIKey == "" {
		logger.Warn("PRIVATE_API_KEY is not set; answers and internal endpoints will fail")
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; content generation will fail")
	}

	router := newRouter(cfg,
		auth.NewHandler(authService),
		room.NewHandler(roomService),
		battle.NewHandler(battleService),
		generation.NewHandler(pipeline, roomRepo),
		wsHub,
	)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", auth.APIKeyHeader},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pipeline.Run(ctx)
	})
	g.Go(func() error {
		return wsHub.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server shutdown gracefully")
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.BattleLogEntry{},
		&models.Match{},
	)
}

// newCache uses Redis when configured so several server processes share room
// changes and the leaderboard; otherwise everything stays in this process.
func newCache(ctx context.Context, addr string) changeCache {
	if addr == "" {
		logger.Warn("REDIS_ADDR is not set; using in-process change feed and leaderboard")
		return cache.NewMemoryCache()
	}

	redisCache := cache.NewRedisCache(addr)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Fatal("failed to connect to redis", zap.String("addr", addr), zap.Error(err))
	}
	return redisCache
}

func newRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	roomHandler *room.Handler,
	battleHandler *battle.Handler,
	generationHandler *generation.Handler,
	wsHub *websocket.Hub,
) *mux.Router {
	router := mux.NewRouter()

	// Auth routes - no JWT required
	router.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Game routes - JWT required
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.JWTMiddleware(cfg.JWTSecret))

	apiRouter.HandleFunc("/rooms", roomHandler.CreateRoom).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms", roomHandler.ListLobby).Methods("GET")
	apiRouter.HandleFunc("/rooms/{roomId}", roomHandler.GetRoom).Methods("GET")
	apiRouter.HandleFunc("/rooms/{roomId}", roomHandler.DeleteRoom).Methods("DELETE", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/join", roomHandler.JoinRoom).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/join-ai", roomHandler.JoinAI).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/start", roomHandler.StartBattle).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/retry", roomHandler.Retry).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/answer", battleHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/rooms/{roomId}/battle-log", roomHandler.BattleLog).Methods("GET")
	apiRouter.HandleFunc("/matches", battleHandler.RecentMatches).Methods("GET")
	apiRouter.HandleFunc("/matches/mine", battleHandler.MyMatches).Methods("GET")
	apiRouter.HandleFunc("/leaderboard", battleHandler.Leaderboard).Methods("GET")

	// Internal routes - shared key required
	internalRouter := router.PathPrefix("/internal").Subrouter()
	internalRouter.Use(auth.APIKeyMiddleware(cfg.PrivateAPIKey))

	internalRouter.HandleFunc("/rooms/{roomId}/generate", generationHandler.Generate).Methods("POST")
	internalRouter.HandleFunc("/ai/ping", generationHandler.Ping).Methods("GET")

	// WebSocket endpoint
	router.HandleFunc("/ws/rooms/{roomId}", wsHub.HandleWebSocket)

	return router
}
