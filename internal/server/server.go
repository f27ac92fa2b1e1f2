package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blameazu/minesweeper/internal/auth"
	"github.com/blameazu/minesweeper/internal/cache"
	"github.com/blameazu/minesweeper/internal/config"
	"github.com/blameazu/minesweeper/internal/database"
	"github.com/blameazu/minesweeper/internal/handlers"
	custommiddleware "github.com/blameazu/minesweeper/internal/middleware"
	"github.com/blameazu/minesweeper/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-co-op/gocron/v2"
)

type Server struct {
	config             *config.Config
	db                 *database.DB
	cache              *cache.Cache
	jwtManager         *auth.JWTManager
	authMiddleware     *auth.AuthMiddleware
	authService        *services.AuthService
	matchService       *services.MatchService
	leaderboardService *services.LeaderboardService
	apiRateLimiter     *custommiddleware.RateLimiter
	authRateLimiter    *custommiddleware.RateLimiter
	server             *http.Server
	reaper             gocron.Scheduler
}

func New() (*Server, error) {
	cfg := config.Load()

	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c, err := cache.New(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if c == nil {
		slog.Info("Redis not configured, read-side cache disabled")
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, "minesweeper",
		time.Duration(cfg.JWTExpiresMinutes)*time.Minute)
	authMiddleware := auth.NewAuthMiddleware(jwtManager)

	authService := services.NewAuthService(db, jwtManager)
	matchService := services.NewMatchService(db, c, cfg)
	leaderboardService := services.NewLeaderboardService(db, c, cfg)

	return &Server{
		config:             cfg,
		db:                 db,
		cache:              c,
		jwtManager:         jwtManager,
		authMiddleware:     authMiddleware,
		authService:        authService,
		matchService:       matchService,
		leaderboardService: leaderboardService,
		apiRateLimiter:     custommiddleware.NewAPIRateLimiter(),
		authRateLimiter:    custommiddleware.NewAuthRateLimiter(),
	}, nil
}

func (s *Server) Start() error {
	router := s.setupRouter()

	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: router,
	}

	reaper, err := s.matchService.StartReaper(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start match reaper: %w", err)
	}
	s.reaper = reaper

	go func() {
		slog.Info("Starting minesweeper server", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if s.reaper != nil {
		if err := s.reaper.Shutdown(); err != nil {
			slog.Error("Failed to stop match reaper", "error", err)
		}
	}

	if err := s.cache.Close(); err != nil {
		slog.Error("Failed to close redis connection", "error", err)
	}

	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close database connection", "error", err)
	}

	s.apiRateLimiter.Close()
	s.authRateLimiter.Close()

	slog.Info("Server shutdown complete")
	return nil
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth.SecurityHeaders)
	r.Use(s.apiRateLimiter.RateLimit)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		authHandler := handlers.NewAuthHandler(s.authService)

		r.Group(func(r chi.Router) {
			r.Use(s.authRateLimiter.RateLimit)
			r.Mount("/auth", authHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.RequireAuth)
			r.Mount("/user", authHandler.ProtectedRoutes())
		})

		matchHandler := handlers.NewMatchHandler(s.matchService)
		r.Mount("/match", matchHandler.Routes(s.authMiddleware))

		leaderboardHandler := handlers.NewLeaderboardHandler(s.leaderboardService)
		r.Mount("/leaderboard", leaderboardHandler.Routes(s.authMiddleware))
	})

	return r
}
