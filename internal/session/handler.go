package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/platform/identity"
)

// Handler exposes the calling principal's session over HTTP. Every route
// operates on the authenticated principal; sessions are never addressable
// by other principals.
type Handler struct {
	guard *Guard
}

// NewHandler creates a Handler.
func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

// RegisterRoutes registers the session API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/session", h.Begin)
	api.GET("/session", h.Show)
	api.POST("/session/touch", h.Touch)
	api.POST("/session/refresh", h.Refresh)
	api.DELETE("/session", h.End)
}

func (h *Handler) principal(c echo.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return identity.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return p, nil
}

func sessionError(err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type showResponse struct {
	Session          Session `json:"session"`
	RemainingSeconds int64   `json:"remaining_seconds"`
}

// Begin starts a fresh session for the caller, replacing any existing one.
func (h *Handler) Begin(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	s := h.guard.Begin(p)
	return c.JSON(http.StatusCreated, s)
}

// Show returns the caller's session with its remaining lifetime.
func (h *Handler) Show(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	if _, err := h.guard.CurrentState(p.ID); err != nil {
		return sessionError(err)
	}
	s, err := h.guard.Get(p.ID)
	if err != nil {
		return sessionError(err)
	}
	remaining, err := h.guard.Remaining(p.ID)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, showResponse{
		Session:          s,
		RemainingSeconds: int64(remaining.Seconds()),
	})
}

// Touch records caller activity without extending the session.
func (h *Handler) Touch(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	if err := h.guard.Touch(p.ID); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Refresh extends the caller's session by the configured lifetime.
func (h *Handler) Refresh(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	if err := h.guard.Refresh(p.ID); err != nil {
		return sessionError(err)
	}
	s, err := h.guard.Get(p.ID)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, s)
}

// End expires the caller's session. Ending an absent or already-expired
// session succeeds quietly.
func (h *Handler) End(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	h.guard.Expire(p.ID)
	return c.NoContent(http.StatusNoContent)
}
