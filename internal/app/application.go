package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"sams/internal/api"
	"sams/internal/auth"
	"sams/internal/checkin"
	"sams/internal/config"
	"sams/internal/course"
	"sams/internal/database"
	"sams/internal/hub"
	"sams/internal/session"
	"sams/internal/websocket"
	pkgdatabase "sams/pkg/database"
)

const (
	throttleCleanupInterval = time.Minute
	shutdownTimeout         = 30 * time.Second
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	processor      *checkin.Processor
	registry       *websocket.Registry
	notifications  *hub.Hub
	httpServer     *http.Server
}

// DatabaseConfig translates the service settings into store settings
func DatabaseConfig(cfg *config.Config) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.WriteTimeout = cfg.Database.Timeout
	return dbConfig
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Hub → Session/Check-in/Course → Registry → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}

	// STEP 1: Database manager applies embedded migrations on open
	dbManager, err := database.NewManager(DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Notification hub is the publisher for both sessions and check-ins
	notifications := hub.NewHub()

	sessionManager := session.NewManager(dbManager, notifications, session.Config{
		Location:                 loc,
		MaxCodeExpirationMinutes: cfg.Attendance.MaxCodeExpirationMinutes,
		CodeAttempts:             cfg.Attendance.CodeAttempts,
	})
	throttle := checkin.NewThrottle(cfg.Attendance.CheckInsPerMinute, time.Minute)
	processor := checkin.NewProcessor(dbManager, notifications, throttle)
	courses := course.NewService(dbManager)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// STEP 3: Live connections
	registry := websocket.NewRegistry()

	// STEP 4: API server owns every route, /ws included
	var apiServer *api.Server
	wsHandler := websocket.NewHandler(registry, notifications, sessionManager, tokens,
		func(w http.ResponseWriter, r *http.Request, err error) { apiServer.WriteError(w, r, err) },
		websocket.Options{
			PingInterval: cfg.WebSocket.PingInterval,
			ReadTimeout:  cfg.WebSocket.ReadTimeout,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
			BufferSize:   cfg.WebSocket.BufferSize,
		})
	apiServer = api.NewServer(api.Dependencies{
		Sessions:       sessionManager,
		CheckIns:       processor,
		Courses:        courses,
		Database:       dbManager,
		Registry:       registry,
		Hub:            notifications,
		Tokens:         tokens,
		WebSocket:      http.HandlerFunc(wsHandler.HandleWebSocket),
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           apiServer,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		processor:      processor,
		registry:       registry,
		notifications:  notifications,
		httpServer:     httpServer,
	}, nil
}

// Run listens on the configured address and serves until ctx is done
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.dbManager.Close()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the hub, the throttle janitor and the HTTP server on ln until
// ctx is done or one of them fails, then shuts everything down in reverse
// dependency order: HTTP → connections → Hub → Database
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := app.notifications.Start(gctx); err != nil {
		_ = ln.Close()
		_ = app.dbManager.Close()
		return fmt.Errorf("failed to start notification hub: %w", err)
	}

	log.Printf("Starting SAMS on %s", ln.Addr())

	g.Go(func() error {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.processor.RunCleanup(gctx, throttleCleanupInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down SAMS")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown
		closed := app.registry.CloseAll()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("Closed %d live connections", closed)
		return nil
	})

	err := g.Wait()

	if stopErr := app.notifications.Stop(); stopErr != nil && !errors.Is(stopErr, hub.ErrHubNotRunning) {
		log.Printf("Notification hub shutdown error: %v", stopErr)
	}
	if closeErr := app.dbManager.Close(); closeErr != nil {
		log.Printf("Database shutdown error: %v", closeErr)
	}

	log.Printf("SAMS shutdown complete")
	return err
}

// GetAddr returns the configured server address
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
