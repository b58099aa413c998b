package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"absence-api/internal/config"
	"absence-api/internal/database"
	"absence-api/internal/event"
	"absence-api/internal/handler"
	"absence-api/internal/middleware"
	"absence-api/internal/repository"
	"absence-api/internal/router"
	"absence-api/internal/service"
	"absence-api/internal/storage"
	"absence-api/internal/websocket"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New(logger *slog.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewDiskStore(cfg.StorageRoot, cfg.MaxUploadSize, cfg.AllowedMIMETypes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	absenceRepo := repository.NewAbsenceRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	logger.Info("database ready")

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	go hub.Run()

	blacklistService := service.NewBlacklistService(tokenRepo, logger)
	authService := service.NewAuthService(userRepo, blacklistService, cfg.JWTSecret, cfg.JWTAccessTTL)
	userService := service.NewUserService(userRepo, logger)
	absenceService := service.NewAbsenceService(absenceRepo, documentRepo, store, bus, logger)
	documentService := service.NewDocumentService(documentRepo, absenceRepo, store, cfg.ThumbnailRoot)
	exportService := service.NewExportService(absenceRepo, service.CSVRenderer{})

	if err := userService.EnsureSeedAdmin(context.Background(), cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed administrator: %w", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)
	absenceHandler := handler.NewAbsenceHandler(absenceService, exportService)
	documentHandler := handler.NewDocumentHandler(documentService, absenceService)
	userHandler := handler.NewUserHandler(userService)
	wsHandler := handler.NewWSHandler(hub)

	health := func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}

	appRouter := router.New(cfg, authMiddleware, authHandler, absenceHandler,
		documentHandler, userHandler, wsHandler, health)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			hub.Stop,
			db.Close,
		},
	}, nil
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := a.server.Shutdown(ctx)
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	return err
}
