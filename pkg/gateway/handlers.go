package gateway

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskterm/taskterm/pkg/authz"
	"github.com/taskterm/taskterm/pkg/session"
)

// openTerminalRequest is the body of POST /api/tasks/:taskID/terminal.
type openTerminalRequest struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// resizeRequest is the body of POST /api/terminals/:sessionID/resize.
type resizeRequest struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

func (g *Gateway) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// openTerminal spawns an interactive session for a task. Authorization
// runs before the process is spawned.
func (g *Gateway) openTerminal(c echo.Context) error {
	taskID := c.Param("taskID")
	principal := principalFrom(c)

	var req openTerminalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if _, err := g.ResolveAndAuthorize(c.Request().Context(), taskID, principal, accessTokenFrom(c), authz.SurfaceTerminal); err != nil {
		return httpError(principal, taskID, err)
	}

	s, err := g.registry.Open(taskID, session.Geometry{Rows: req.Rows, Cols: req.Cols})
	if err != nil {
		return httpError(principal, taskID, err)
	}

	if err := g.audit.LogSessionStart(s.ID(), taskID, principal.Name); err != nil {
		log.Printf("Failed to log session start for %s: %v", s.ID(), err)
	}

	log.Printf("[TERMINAL_OPENED] principal %s task %s session %s", principal.Name, taskID, s.ID())
	return c.JSON(http.StatusCreated, map[string]string{
		"session_id": s.ID(),
		"task_id":    taskID,
	})
}

// resizeTerminal forwards a geometry change to a live session.
func (g *Gateway) resizeTerminal(c echo.Context) error {
	sessionID := c.Param("sessionID")
	principal := principalFrom(c)

	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Rows == 0 || req.Cols == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "rows and cols must be positive")
	}

	s, err := g.registry.Get(sessionID)
	if err != nil {
		return httpError(principal, "", err)
	}

	if _, err := g.ResolveAndAuthorize(c.Request().Context(), s.TaskID(), principal, accessTokenFrom(c), authz.SurfaceTerminal); err != nil {
		return httpError(principal, s.TaskID(), err)
	}

	if err := g.registry.Resize(sessionID, req.Rows, req.Cols); err != nil {
		return httpError(principal, s.TaskID(), err)
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": sessionID})
}

// attachTerminal upgrades to a websocket and relays the session's byte
// stream for the connection's lifetime. Closing the socket tears the
// session down.
func (g *Gateway) attachTerminal(c echo.Context) error {
	sessionID := c.Param("sessionID")
	principal := principalFrom(c)

	s, err := g.registry.Get(sessionID)
	if err != nil {
		return httpError(principal, "", err)
	}

	if _, err := g.ResolveAndAuthorize(c.Request().Context(), s.TaskID(), principal, accessTokenFrom(c), authz.SurfaceTerminal); err != nil {
		return httpError(principal, s.TaskID(), err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	channel := newWSChannel(conn)
	defer channel.Close()

	// Blocks until the viewer disconnects. The relay tears the session
	// down on any exit, so the audit record is closed either way.
	if err := g.relay.Attach(sessionID, channel); err != nil {
		log.Printf("[RELAY_FAILED] principal %s session %s: %v", principal.Name, sessionID, err)
	}
	if err := g.audit.LogSessionEnd(sessionID); err != nil {
		log.Printf("Failed to log session end for %s: %v", sessionID, err)
	}
	return nil
}

// listTerminals lists live sessions. Restricted to super-admins since it
// spans tasks of every user.
func (g *Gateway) listTerminals(c echo.Context) error {
	principal := principalFrom(c)
	if g.config.Auth.Enabled && !principal.InGroup(g.config.Auth.SuperAdminGroups) {
		return echo.NewHTTPError(http.StatusForbidden, "super-admin group membership required")
	}

	sessions := g.registry.List()
	result := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		geometry := s.Geometry()
		result = append(result, map[string]interface{}{
			"session_id":   s.ID(),
			"task_id":      s.TaskID(),
			"created_at":   s.CreatedAt(),
			"rows":         geometry.Rows,
			"cols":         geometry.Cols,
			"history_size": s.HistorySize(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": result})
}

// browseSandbox lists a directory inside the task sandbox.
func (g *Gateway) browseSandbox(c echo.Context) error {
	taskID := c.Param("taskID")
	principal := principalFrom(c)

	descriptor, err := g.ResolveAndAuthorize(c.Request().Context(), taskID, principal, accessTokenFrom(c), authz.SurfaceSandbox)
	if err != nil {
		return httpError(principal, taskID, err)
	}

	files, err := g.files.Browse(c.Request().Context(), descriptor, c.QueryParam("path"))
	if err != nil {
		return httpError(principal, taskID, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"path":    c.QueryParam("path"),
		"files":   files,
	})
}

// downloadSandbox streams one sandbox file to the client.
func (g *Gateway) downloadSandbox(c echo.Context) error {
	taskID := c.Param("taskID")
	principal := principalFrom(c)

	descriptor, err := g.ResolveAndAuthorize(c.Request().Context(), taskID, principal, accessTokenFrom(c), authz.SurfaceSandbox)
	if err != nil {
		return httpError(principal, taskID, err)
	}

	relPath := c.QueryParam("path")
	body, err := g.files.Download(c.Request().Context(), descriptor, relPath)
	if err != nil {
		return httpError(principal, taskID, err)
	}
	defer func() { _ = body.Close() }()

	log.Printf("[SANDBOX_DOWNLOAD] principal %s task %s path %s", principal.Name, taskID, relPath)
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment")
	return c.Stream(http.StatusOK, "application/octet-stream", body)
}

// delegateTask mints a time-limited access token for a task the caller is
// already authorized on, so it can be shared with another principal.
func (g *Gateway) delegateTask(c echo.Context) error {
	taskID := c.Param("taskID")
	principal := principalFrom(c)

	if g.tokens == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "delegation is not configured")
	}

	if _, err := g.ResolveAndAuthorize(c.Request().Context(), taskID, principal, accessTokenFrom(c), authz.SurfaceTerminal); err != nil {
		return httpError(principal, taskID, err)
	}

	token, err := g.tokens.Issue(taskID, principal.Name)
	if err != nil {
		return httpError(principal, taskID, err)
	}

	log.Printf("[TASK_DELEGATED] principal %s task %s", principal.Name, taskID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id":    taskID,
		"token":      token,
		"expires_in": g.config.Auth.Delegation.TTL.Seconds(),
	})
}
