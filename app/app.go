package riverchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/metrics"
	"github.com/putto11262002/riverchat/pkg/router"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *Config
	db      *core.SQLiteDB
	redis   *redis.Client
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *router.Router

	hub         *core.Hub
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager

	userStore core.UserStore
	authStore core.AuthStore
	rooms     core.RoomDirectory
	messages  core.MessageStore
	gateway   *Gateway

	userHandler *UserHandler
	chatHandler *ChatHandler
	authHandler *AuthHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

// New wires the application. The returned app serves until ctx is done.
func New(ctx context.Context, config *Config, logger *slog.Logger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}

	app := &App{
		config:  config,
		context: ctx,
		logger:  logger,
	}

	var err error
	sqliteOptions := core.DefaultSQLiteDBOption
	app.db, err = core.NewSQLiteDB(config.SQLite.File, config.SQLite.Migrations, &sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.AddCleanupFunc(func(context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		app.cleanup(context.Background())
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.authStore = core.NewJWTAuthStore(app.userStore, config.Auth.Secret, config.Auth.TTL)
	app.rooms = core.NewSQLiteRoomDirectory(app.db.DB)
	app.messages = core.NewSQLiteMessageStore(app.db.DB, core.WithMessageStoreLogger(logger))

	if config.Seed.Rooms != "" {
		if err := seedRoomsFromFile(ctx, app.rooms, config.Seed.Rooms, logger); err != nil {
			app.cleanup(context.Background())
			return nil, fmt.Errorf("seed rooms: %w", err)
		}
	}

	gatewayOpts := []GatewayOption{WithGatewayLogger(logger.With(slog.String("component", "gateway")))}
	if config.Redis.URL != "" {
		app.redis, err = core.NewRedisClient(ctx, config.Redis.URL)
		if err != nil {
			app.cleanup(context.Background())
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.AddCleanupFunc(func(context.Context) {
			app.redis.Close()
		})
		limiter, err := core.NewFixedWindowLimiter(app.redis, "", config.RateLimit.Messages, config.RateLimit.Window)
		if err != nil {
			app.cleanup(context.Background())
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		gatewayOpts = append(gatewayOpts, WithLimiter(limiter))
	}

	app.hub = core.NewHub(core.WithHubLogger(logger.With(slog.String("component", "hub"))))
	app.gateway = NewGateway(app.rooms, app.messages, app.hub, gatewayOpts...)

	app.eventRouter = core.NewEventRouter(core.WithEventLogger(logger.With(slog.String("component", "events"))))
	app.gateway.RegisterEvents(app.eventRouter)

	app.wsManager = core.NewConnManager(ctx, &app.wg, app.hub, app.eventRouter,
		core.WithLogger(logger.With(slog.String("component", "ws"))),
		core.WithCheckOrigin(originChecker(config.AllowedOrigins)))
	app.wsManager.OnConnectionClosed(app.gateway.ConnectionClosed)

	app.userHandler = NewUserHandler(app.userStore)
	app.chatHandler = NewChatHandler(app.gateway)
	app.authHandler = NewAuthHandler(app.authStore)

	app.routes()

	app.server = &http.Server{
		Addr:    config.Addr(),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if config.TLS.Crt != "" && config.TLS.Key != "" {
		app.server.TLSConfig = newTLSConfig()
	}

	return app, nil
}

func (app *App) routes() {
	authMiddleware := core.JWTMiddleware(app.authStore)

	app.router = router.New(router.WithLogger(app.logger.With(slog.String("component", "http"))))
	RegisterErrorMappers(app.router)

	app.router.Router.Use(middleware.RequestID)
	app.router.Router.Use(middleware.RealIP)
	app.router.Router.Use(middleware.Recoverer)
	app.router.Router.Use(metrics.Middleware)
	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.Router.Handle("/metrics", promhttp.Handler())
	app.router.Get("/healthz", app.healthHandler)

	app.router.With(authMiddleware).Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		session := core.SessionFromRequest(r)
		if err := app.wsManager.Connect(session.Principal, w, r); err != nil {
			app.logger.Debug(err.Error())
		}
	})

	app.router.Route("/api", func(api *router.Router) {
		api.Route("/auth", func(r *router.Router) {
			r.Post("/signin", app.authHandler.SigninHandler)
			r.With(authMiddleware).Post("/signout", app.authHandler.SignoutHandler)
		})

		api.Route("/users", func(r *router.Router) {
			r.Post("/", app.userHandler.RegisterUserHandler)
			r.With(authMiddleware).Get("/me", app.userHandler.MeHandler)
		})

		api.Group(func(r *router.Router) {
			r.Use(authMiddleware)
			r.Get("/rooms", app.chatHandler.ListRoomsHandler)
			r.Post("/rooms", app.chatHandler.CreateRoomHandler)
			r.Get("/rooms/{roomID:[0-9]+}", app.chatHandler.GetRoomHandler)
			r.Put("/rooms/{roomID:[0-9]+}/active", app.chatHandler.SetRoomActiveHandler)
			r.Post("/rooms/{roomID:[0-9]+}/members", app.chatHandler.JoinRoomHandler)
			r.Delete("/rooms/{roomID:[0-9]+}/members", app.chatHandler.LeaveRoomHandler)
			r.Get("/rooms/{roomName}/messages", app.chatHandler.ListMessagesHandler)
			r.Post("/rooms/{roomName}/messages", app.chatHandler.SendMessageHandler)
			r.Put("/messages/{messageID}", app.chatHandler.EditMessageHandler)
			r.Delete("/messages/{messageID}", app.chatHandler.DeleteMessageHandler)
			r.Post("/messages/{messageID}/reactions", app.chatHandler.ToggleReactionHandler)
		})
	})
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) error {
	if err := app.db.PingContext(r.Context()); err != nil {
		return router.NewAPIError(http.StatusServiceUnavailable, "database unavailable")
	}
	return router.JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": app.wsManager.Len(),
	})
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

// Start serves until the app context is done, then shuts down gracefully.
func (app *App) Start() error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(fmt.Sprintf("app running in %s mode on: %s", app.config.Mode, app.config.Addr()))
		var err error
		if app.server.TLSConfig != nil {
			err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-app.context.Done():
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(closeCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

// Shutdown stops accepting requests, closes the websocket connections and
// waits for their loops before releasing the database and redis.
func (app *App) Shutdown(ctx context.Context) error {
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error(fmt.Sprintf("server shutdown: %v", err))
	}
	app.wsManager.Close()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		app.logger.Info("app shutdown timed out")
		return ctx.Err()
	}

	app.cleanup(ctx)
	app.logger.Info("app shutdown gracefully")
	return nil
}

func (app *App) cleanup(ctx context.Context) {
	// release in reverse order of acquisition
	for _, f := range slices.Backward(app.cleanupFuncs) {
		f(ctx)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}
