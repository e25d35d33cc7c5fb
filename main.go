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

	"github.com/isdelr/todo-api/internal/api"
	"github.com/isdelr/todo-api/internal/auth"
	"github.com/isdelr/todo-api/internal/config"
	"github.com/isdelr/todo-api/internal/database"
	"github.com/isdelr/todo-api/internal/logger"
	"github.com/isdelr/todo-api/internal/monitoring"
	"github.com/isdelr/todo-api/internal/services"
	"github.com/isdelr/todo-api/internal/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	userService := services.NewUserService(db)
	eventService := services.NewEventService(db, hub)
	todoService := services.NewTodoService(db, eventService)
	tagService := services.NewTagService(db)

	hasher := auth.NewHasher(cfg.BcryptCost)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, userService)
	verifier := auth.NewVerifier(cfg.JWTSecret, userService)

	// Set up the background expired-token sweeper
	var sweeper *monitoring.TokenSweeper
	if cfg.TokenSweepSchedule != "" {
		sweeper, err = monitoring.NewTokenSweeper(userService, cfg.TokenSweepSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure token sweeper")
		}
		sweeper.Run()
	}

	// Set up router
	router := api.NewRouter(api.Deps{
		Config:       *cfg,
		Hub:          hub,
		Hasher:       hasher,
		Issuer:       issuer,
		Verifier:     verifier,
		DB:           db,
		UserService:  userService,
		TodoService:  todoService,
		TagService:   tagService,
		EventService: eventService,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	if sweeper != nil {
		sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}
