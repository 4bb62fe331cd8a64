// Package gateway is the request-level orchestration layer: every
// task-scoped operation resolves the sandbox descriptor, asks the
// authorization evaluator, and only then delegates to the session
// registry or the sandbox file reader.
package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/taskterm/taskterm/pkg/authz"
	"github.com/taskterm/taskterm/pkg/cluster"
	"github.com/taskterm/taskterm/pkg/config"
	"github.com/taskterm/taskterm/pkg/logger"
	"github.com/taskterm/taskterm/pkg/sandbox"
	"github.com/taskterm/taskterm/pkg/session"
)

// Gateway wires the descriptor cache, the authorization evaluator, the
// session registry and the sandbox file reader behind an echo server.
type Gateway struct {
	config    *config.Config
	echo      *echo.Echo
	cache     *sandbox.Cache
	evaluator *authz.Evaluator
	tokens    *authz.TokenService
	registry  *session.Registry
	relay     *session.Relay
	files     sandbox.FileReader
	audit     *logger.Logger
	verbose   bool
}

// New creates a Gateway over the given collaborators.
func New(cfg *config.Config, cache *sandbox.Cache, registry *session.Registry, files sandbox.FileReader, verbose bool) *Gateway {
	e := echo.New()

	// Disable Echo's default logger and use custom logging
	e.Logger.SetOutput(io.Discard)

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-API-Key", "X-Forwarded-User", "X-Forwarded-Groups"},
		MaxAge:       86400,
	}))

	tokens := authz.NewTokenService(cfg.Auth.Delegation)

	g := &Gateway{
		config:    cfg,
		echo:      e,
		cache:     cache,
		evaluator: authz.NewEvaluator(cfg.Auth, tokens),
		tokens:    tokens,
		registry:  registry,
		relay:     session.NewRelay(registry),
		files:     files,
		audit:     logger.NewLogger(),
		verbose:   verbose,
	}

	if verbose {
		e.Use(g.loggingMiddleware())
	}
	e.Use(g.identityMiddleware())

	g.setupRoutes()
	return g
}

func (g *Gateway) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Printf("Request: %s %s from %s", req.Method, req.URL.Path, req.RemoteAddr)
			return next(c)
		}
	}
}

// setupRoutes configures the router with all defined routes
func (g *Gateway) setupRoutes() {
	g.echo.GET("/health", g.health)

	api := g.echo.Group("/api")
	api.POST("/tasks/:taskID/terminal", g.openTerminal)
	api.POST("/tasks/:taskID/delegate", g.delegateTask)
	api.GET("/tasks/:taskID/sandbox/browse", g.browseSandbox)
	api.GET("/tasks/:taskID/sandbox/download", g.downloadSandbox)
	api.GET("/terminals", g.listTerminals)
	api.POST("/terminals/:sessionID/resize", g.resizeTerminal)
	api.GET("/terminals/:sessionID/ws", g.attachTerminal)
}

// ResolveAndAuthorize fetches the task's sandbox descriptor and evaluates
// the authorization rules for the given principal and surface. No
// delegate runs and no process spawns before this returns nil.
func (g *Gateway) ResolveAndAuthorize(ctx context.Context, taskID string, principal authz.Principal, accessToken string, surface authz.Surface) (*sandbox.Descriptor, error) {
	descriptor, err := g.cache.Resolve(ctx, taskID)
	if err != nil {
		return nil, err
	}

	decision := g.evaluator.Authorize(authz.Request{
		Principal:   principal,
		Task:        descriptor.Task,
		Surface:     surface,
		AccessToken: accessToken,
	})
	if !decision.Allowed {
		log.Printf("[AUTHZ_DENIED] principal %s task %s: %s", principal.Name, taskID, decision.Reason)
		return nil, &authz.UnauthorizedError{Reason: decision.Reason}
	}
	return descriptor, nil
}

// Echo returns the underlying echo instance.
func (g *Gateway) Echo() *echo.Echo {
	return g.echo
}

// Start runs the HTTP server on the given address.
func (g *Gateway) Start(addr string) error {
	return g.echo.Start(addr)
}

// Shutdown stops the server and tears down all live sessions.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := g.echo.Shutdown(ctx)
	g.registry.Shutdown()
	g.cache.Close()
	return err
}

// httpError maps the typed error taxonomy onto response statuses. Every
// branch is recoverable at the request boundary.
func httpError(principal authz.Principal, taskID string, err error) *echo.HTTPError {
	var (
		taskNotFound    *cluster.TaskNotFoundError
		agentNotFound   *cluster.AgentNotFoundError
		fileNotFound    *sandbox.FileNotFoundError
		sessionNotFound *session.SessionNotFoundError
		unauthorized    *authz.UnauthorizedError
		spawn           *session.SpawnError
	)
	switch {
	case errors.As(err, &taskNotFound),
		errors.As(err, &agentNotFound),
		errors.As(err, &fileNotFound),
		errors.As(err, &sessionNotFound):
		log.Printf("[NOT_FOUND] principal %s task %s: %v", principal.Name, taskID, err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &unauthorized):
		return echo.NewHTTPError(http.StatusForbidden, unauthorized.Reason)
	case errors.As(err, &spawn):
		log.Printf("[SPAWN_FAILED] principal %s task %s: %v", principal.Name, taskID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start session")
	default:
		log.Printf("[REQUEST_FAILED] principal %s task %s: %v", principal.Name, taskID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
