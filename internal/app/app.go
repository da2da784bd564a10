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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"credguard/internal/config"
	apierrors "credguard/internal/errors"
	"credguard/internal/infrastructure"
	"credguard/internal/license"
	customMiddleware "credguard/internal/middleware"
	"credguard/internal/security"
	"credguard/internal/services"
	handlers "credguard/internal/transport/http"
	ws "credguard/internal/websocket"
	"credguard/pkg/contracts"
)

// runtimeSampleInterval is how often runtime gauges are recorded
const runtimeSampleInterval = 15 * time.Second

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Manager      *license.Manager
	PeerClient   *license.HTTPPeerClient
	Fleet        *license.FleetMonitor
	WebSocketHub *ws.Hub
	Services     *ServiceContainer

	errorHandler *apierrors.ErrorHandler
	runtime      *infrastructure.RuntimeCollector
	redisClient  *redis.Client
	geoResolver  *license.GeoIPResolver
	detachBridge func()
	nodeID       string
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Validation *services.ValidationService
	Health     *services.HealthService
	Engine     *license.EngineHealthCheck
}

// NewApplication loads configuration and the process logger, then wires the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.GetFullVersionString()))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	return New(context.Background(), cfg, logger, otelProviders)
}

// New wires an application from an already loaded configuration. opts are applied to
// the validation engine after the defaults.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, otelProviders *infrastructure.OTelProviders, opts ...license.Option) (*Application, error) {
	if otelProviders == nil {
		otelProviders = &infrastructure.OTelProviders{Logger: logger}
	}
	if otelProviders.Logger == nil {
		otelProviders.Logger = logger
	}
	// Disabled exporters leave these unset; fall back to the global no-op providers
	if otelProviders.Tracer == nil {
		otelProviders.Tracer = otel.Tracer(infrastructure.MeterName)
	}
	if otelProviders.Meter == nil {
		otelProviders.Meter = otel.Meter(infrastructure.MeterName)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
		nodeID:        nodeID(cfg),
	}

	if err := app.initializeServices(ctx, opts...); err != nil {
		app.closeResources()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the engine and everything that hangs off it
func (a *Application) initializeServices(ctx context.Context, opts ...license.Option) error {
	cfg := a.Config

	if cfg.Token.Secret == "" {
		return apierrors.NewConfigError("token secret is required", nil)
	}
	basic := license.NewTokenValidator(cfg.Token.Secret, cfg.Token.Issuer)

	profiles, err := a.buildProfileStore(ctx)
	if err != nil {
		return err
	}

	var resolver license.GeoResolver
	if cfg.GeoIP.DBPath != "" {
		geo, err := license.NewGeoIPResolver(cfg.GeoIP.DBPath)
		if err != nil {
			return apierrors.NewConfigError("open geoip database", err)
		}
		a.geoResolver = geo
		resolver = geo
		a.Logger.Info("GeoIP resolver enabled", slog.String("db_path", cfg.GeoIP.DBPath))
	} else {
		a.Logger.Warn("No GeoIP database configured, geolocation checks pass without a location")
	}

	var peers license.PeerClient
	var breakers license.BreakerReporter
	if len(cfg.Validation.PeerNodes) > 0 {
		a.PeerClient = license.NewHTTPPeerClient(
			&http.Client{Timeout: cfg.Validation.PeerTimeout},
			config.PeerVerifyPath,
			cfg.Validation.BreakerTimeout,
			cfg.Validation.BreakerMaxFailures,
		)
		peers = a.PeerClient
		breakers = a.PeerClient
		a.Logger.Info("Consensus peers configured", slog.Any("peers", cfg.Validation.PeerNodes))
	}

	validationMetrics, err := license.InitializeValidationMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create validation metrics: %w", err)
	}

	// Requests without device attributes are fingerprinted against this host
	fingerprints := security.NewFingerprintManager()

	managerOpts := append([]license.Option{
		license.WithLogger(a.Logger),
		license.WithMetrics(validationMetrics),
		license.WithNodeID(a.nodeID),
		license.WithDeviceCollector(fingerprints.CollectAttributes),
	}, opts...)
	manager, err := license.NewManager(cfg.Validation, basic, profiles, resolver, peers, managerOpts...)
	if err != nil {
		return err
	}
	a.Manager = manager
	a.Fleet = license.NewFleetMonitor(manager, cfg.Validation.FleetScanInterval)

	var hub services.ClientCounter
	if cfg.WebSocket.Enabled {
		hubMetrics, err := ws.NewOTelMetrics(a.OTelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create websocket metrics: %w", err)
		}
		a.WebSocketHub = ws.NewHub(a.Logger, ws.WithHubMetrics(hubMetrics))
		a.detachBridge = ws.Bridge(manager.Events(), a.WebSocketHub)
		hub = a.WebSocketHub
	}

	a.runtime, err = infrastructure.NewRuntimeCollector(a.OTelProviders.Meter, runtimeSampleInterval)
	if err != nil {
		return fmt.Errorf("failed to create runtime collector: %w", err)
	}

	inputs := security.NewInputValidator(nil)
	inputs.SetLogger(a.Logger)

	engineHealth := license.NewEngineHealthCheck(manager, breakers, cfg.Validation.PeerTimeout)
	a.Services = &ServiceContainer{
		Validation: services.NewValidationService(manager, inputs, a.Logger),
		Health:     services.NewHealthService(engineHealth, hub, a.Fleet, a.Logger),
		Engine:     engineHealth,
	}

	return nil
}

func (a *Application) buildProfileStore(ctx context.Context) (license.ProfileStore, error) {
	if a.Config.Validation.ProfileStore != config.ProfileStoreRedis {
		a.Logger.Info("Using in-memory profile store")
		return license.NewMemoryProfileStore(), nil
	}

	client, err := infrastructure.NewRedisClient(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, apierrors.NewStorageError("profile store unavailable", err)
	}
	a.redisClient = client
	return license.NewRedisProfileStore(client, license.WithKeyPrefix(a.Config.Redis.KeyPrefix)), nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter alone runs ahead of the upgrade
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	if a.WebSocketHub != nil {
		r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).
			HandleFunc(config.WebSocketEndpoint, a.handleWebSocket)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders → CORS → RateLimit
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
		r.Mount(config.HealthEndpoint, healthHandler.Routes())

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures the /api/v1 endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := customMiddleware.NewValidationMiddleware(a.Logger, a.errorHandler)

	validation := handlers.NewValidationHandler(a.Services.Validation, validator, a.errorHandler, a.Logger)
	admin := handlers.NewAdminHandler(a.Services.Validation, validator, a.errorHandler, a.Logger)
	peer := handlers.NewPeerHandler(a.Services.Validation, a.Logger)

	var hubStats handlers.HubStatsSource
	if a.WebSocketHub != nil {
		hubStats = a.WebSocketHub
	}
	stats := handlers.NewMetricsHandler(a.Manager, hubStats, a.Fleet)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Validation.Deadline+time.Second, a.Logger))
		r.Use(validator.ValidateRequest)
		r.Use(customMiddleware.ContentTypeValidator(a.errorHandler, "application/json"))

		validation.RegisterRoutes(r)
		r.Get("/stats", stats.GetStats)
		r.Post("/peer/verify", peer.Verify)

		r.Route("/admin", func(r chi.Router) {
			r.Use(customMiddleware.AdminAuth(a.Config.Security.AdminToken, a.Logger))
			r.Use(customMiddleware.AuditLog(a.Logger))
			r.Use(apierrors.NewErrorMiddleware(a.errorHandler, a.Logger).Handler)
			r.Mount("/", admin.Routes())
		})
	})
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the background workers and the HTTP server
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("node_id", a.nodeID),
		slog.Int("port", a.Config.Server.Port),
		slog.String("profile_store", a.Config.Validation.ProfileStore),
		slog.Int("peers", len(a.Config.Validation.PeerNodes)))

	if a.WebSocketHub != nil {
		a.WebSocketHub.Start()
	}
	go a.Fleet.Start(ctx)
	go a.runtime.Start(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", a.Server.Addr))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Fleet.Stop()
	a.runtime.Stop()
	if a.detachBridge != nil {
		a.detachBridge()
	}
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	a.closeResources()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

func (a *Application) closeResources() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Error("Error closing redis client", slog.String("error", err.Error()))
		}
		a.redisClient = nil
	}
	if a.geoResolver != nil {
		if err := a.geoResolver.Close(); err != nil {
			a.Logger.Error("Error closing geoip database", slog.String("error", err.Error()))
		}
		a.geoResolver = nil
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// handleWebSocket upgrades /ws and attaches the connection to the hub. The stream is
// server to client only.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	origin := r.Header.Get("Origin")

	upgrader := websocket.Upgrader{
		CheckOrigin:     a.checkOrigin,
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.WarnContext(ctx, "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", origin))
			a.errorHandler.HandleError(w, r, apierrors.New(status, "WEBSOCKET_UPGRADE_FAILED", reason.Error()))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(a.WebSocketHub, ws.WrapConn(conn), traceID, a.Logger)
	client.Serve()

	a.Logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("client_id", client.ID()),
		slog.String("remote_addr", customMiddleware.GetRealIP(r)))
}

// checkOrigin accepts same-origin requests (no Origin header) and configured origins
func (a *Application) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.Config.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	a.Logger.WarnContext(r.Context(), "WebSocket origin not allowed",
		slog.String("origin", origin),
		slog.Any("allowed_origins", a.Config.Security.AllowedOrigins))
	return false
}

// performStartupHealthCheck runs the engine checks once so misconfiguration shows in the log
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	result := a.Services.Engine.PerformHealthCheck(ctx)

	var unhealthy []string
	for name, component := range result.Components {
		if component.Status == license.HealthStatusUnhealthy {
			unhealthy = append(unhealthy, fmt.Sprintf("%s: %s", name, component.Message))
		}
	}

	a.Logger.InfoContext(ctx, "Startup health check",
		slog.String("status", string(result.OverallStatus)),
		slog.String("message", result.Message))

	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// nodeID identifies this node in peer votes
func nodeID(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return config.AppName
	}
	return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
}
