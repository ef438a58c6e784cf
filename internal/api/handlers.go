// Package api contains the REST handlers of the initiative service.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"initiative-mcp/internal/auth"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/services"
	"initiative-mcp/pkg/models"
)

// Version is reported by the health endpoint.
var Version = "1.0.0"

// Handler contains HTTP handlers for the initiative REST API
type Handler struct {
	manager  *services.LifecycleManager
	sessions *services.SessionFactory
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(manager *services.LifecycleManager, sessions *services.SessionFactory, logger *logging.Logger) *Handler {
	return &Handler{manager: manager, sessions: sessions, logger: logger, now: time.Now}
}

// RegisterRoutes mounts the initiative routes on g. read and write guard the
// query and mutating routes.
func (h *Handler) RegisterRoutes(g *echo.Group, read, write echo.MiddlewareFunc) {
	g.GET("/stages", h.ListStages, read)
	g.GET("/governance", h.GetGovernance, read)
	g.PUT("/governance", h.PutGovernance, write)
	g.POST("/initiatives", h.CreateInitiative, write)
	g.GET("/initiatives/:key", h.GetInitiative, read)
	g.POST("/initiatives/:key/advance", h.AdvanceInitiative, write)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
// (GET /healthz)
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: h.now(),
		Service:   "initiative-mcp",
		Version:   Version,
	})
}

// CreateInitiativeRequest is the body of POST /api/v1/initiatives.
type CreateInitiativeRequest struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// CreateInitiative starts a new initiative
// (POST /api/v1/initiatives)
func (h *Handler) CreateInitiative(c echo.Context) error {
	var body CreateInitiativeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	result, err := h.manager.Create(c.Request().Context(), sess, body.Key, body.Title)
	if err != nil {
		return err
	}
	return respond(c, result.Outcome, result.Message, result)
}

// GetInitiative reports the stage and history of one initiative
// (GET /api/v1/initiatives/:key)
func (h *Handler) GetInitiative(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	report, err := h.manager.Status(c.Request().Context(), sess, c.Param("key"))
	if err != nil {
		return err
	}
	return respond(c, report.Outcome, report.Message, report)
}

// AdvanceInitiative processes the current stage of an initiative
// (POST /api/v1/initiatives/:key/advance)
func (h *Handler) AdvanceInitiative(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	result, err := h.manager.Advance(c.Request().Context(), sess, c.Param("key"))
	if err != nil {
		return err
	}
	return respond(c, result.Outcome, result.Message, result)
}

// GetGovernance reports whether the project has governance configured
// (GET /api/v1/governance)
func (h *Handler) GetGovernance(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	report, err := h.manager.Status(c.Request().Context(), sess, "")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// PutGovernanceRequest is the body of PUT /api/v1/governance.
type PutGovernanceRequest struct {
	Groups map[models.Group][]string `json:"groups"`
}

// PutGovernance records the approvers of each group
// (PUT /api/v1/governance)
func (h *Handler) PutGovernance(c echo.Context) error {
	var body PutGovernanceRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	result, err := h.manager.ConfigureGovernance(c.Request().Context(), sess, body.Groups)
	if err != nil {
		return err
	}
	return respond(c, result.Outcome, result.Message, result)
}

// ListStages returns the workflow in order
// (GET /api/v1/stages)
func (h *Handler) ListStages(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stages())
}

func (h *Handler) session(c echo.Context) (*services.Session, error) {
	ctx := c.Request().Context()
	sess, err := h.sessions.Open(ctx, c.QueryParam("project"), auth.ActorFromContext(ctx))
	if errors.Is(err, services.ErrProjectOutsideRoot) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	return sess, nil
}

// statusFor maps an outcome to its HTTP status.
func statusFor(outcome services.Outcome) int {
	switch outcome {
	case services.OutcomeCreated:
		return http.StatusCreated
	case services.OutcomeNotFound:
		return http.StatusNotFound
	case services.OutcomeAlreadyExists:
		return http.StatusConflict
	case services.OutcomeGovernanceNotConfigured:
		return http.StatusPreconditionFailed
	case services.OutcomeInvalidInput:
		return http.StatusBadRequest
	case services.OutcomeUnknownStage:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func respond(c echo.Context, outcome services.Outcome, message string, body any) error {
	status := statusFor(outcome)
	if status >= http.StatusBadRequest {
		return writeError(c, status, http.StatusText(status), message, outcome)
	}
	return c.JSON(status, body)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	// Outcome carries the machine readable result code, when there is one.
	Outcome services.Outcome `json:"outcome,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string, outcome services.Outcome) error {
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Outcome:  outcome,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, problem)
}

// HandleError renders every error escaping a handler as problem details.
// Unexpected errors are logged and reported as 500.
func (h *Handler) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	detail := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		detail = fmt.Sprint(he.Message)
	} else {
		h.logger.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}
	if werr := writeError(c, status, http.StatusText(status), detail, ""); werr != nil {
		h.logger.Error("failed to write error response", "error", werr)
	}
}
