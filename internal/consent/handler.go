package consent

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/authz"
	"github.com/caregate/caregate/internal/platform/identity"
)

// Handler exposes the consent lifecycle over HTTP.
type Handler struct {
	store      *Store
	authorizer *authz.Authorizer
}

// NewHandler creates a Handler.
func NewHandler(store *Store, authorizer *authz.Authorizer) *Handler {
	return &Handler{store: store, authorizer: authorizer}
}

// RegisterRoutes registers the consent API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/consents", h.Create)
	api.POST("/consents/:id/grant", h.Grant)
	api.POST("/consents/:id/revoke", h.Revoke)
	api.POST("/consents/:id/suspend", h.Suspend)
	api.POST("/consents/:id/reinstate", h.Reinstate)
	api.GET("/consents/:id", h.Get)
	api.GET("/patients/:patientId/consents", h.Query)
	api.GET("/consent-categories", h.Categories)
}

func (h *Handler) principal(c echo.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return identity.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return p, nil
}

// authorize gates the request on a consent capability scoped to the owning
// patient. A denied decision renders as 403, never as an internal error.
func (h *Handler) authorize(c echo.Context, p identity.Principal, action, patientID string) error {
	decision := h.authorizer.Authorize(c.Request().Context(), p, action, patientID)
	if !decision.Allowed {
		return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
	}
	return nil
}

func httpError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	var se *InvalidStateError
	if errors.As(err, &se) {
		return echo.NewHTTPError(http.StatusConflict, se.Error())
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "consent not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Create records a new pending consent.
func (h *Handler) Create(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := h.authorize(c, p, "manage_consents", req.PatientID); err != nil {
		return err
	}

	id, err := h.store.Create(c.Request().Context(), req, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id.String()})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) transitionHandler(c echo.Context, action string, apply func(uuid.UUID, identity.Principal) error) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid consent id")
	}

	existing, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := h.authorize(c, p, action, existing.PatientID); err != nil {
		return err
	}
	if err := apply(id, p); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Grant activates a pending consent.
func (h *Handler) Grant(c echo.Context) error {
	return h.transitionHandler(c, "manage_consents", func(id uuid.UUID, p identity.Principal) error {
		return h.store.Grant(c.Request().Context(), id, p)
	})
}

// Revoke terminally revokes a consent; the reason is required.
func (h *Handler) Revoke(c echo.Context) error {
	var body revokeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return h.transitionHandler(c, "manage_consents", func(id uuid.UUID, p identity.Principal) error {
		return h.store.Revoke(c.Request().Context(), id, body.Reason, p)
	})
}

// Suspend pauses a granted consent.
func (h *Handler) Suspend(c echo.Context) error {
	return h.transitionHandler(c, "manage_consents", func(id uuid.UUID, p identity.Principal) error {
		return h.store.Suspend(c.Request().Context(), id, p)
	})
}

// Reinstate resumes a suspended consent.
func (h *Handler) Reinstate(c echo.Context) error {
	return h.transitionHandler(c, "manage_consents", func(id uuid.UUID, p identity.Principal) error {
		return h.store.Reinstate(c.Request().Context(), id, p)
	})
}

// Get returns one consent by id.
func (h *Handler) Get(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid consent id")
	}
	existing, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := h.authorize(c, p, "view_consents", existing.PatientID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}

// Query returns a patient's consents, newest version first.
func (h *Handler) Query(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return err
	}
	patientID := c.Param("patientId")
	if err := h.authorize(c, p, "view_consents", patientID); err != nil {
		return err
	}

	var t *Type
	if raw := c.QueryParam("type"); raw != "" {
		parsed := Type(raw)
		if !parsed.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown consent type")
		}
		t = &parsed
	}

	consents, err := h.store.Query(c.Request().Context(), patientID, t)
	if err != nil {
		return httpError(err)
	}
	if consents == nil {
		consents = []*Consent{}
	}
	return c.JSON(http.StatusOK, consents)
}

// Categories returns the static data category registry.
func (h *Handler) Categories(c echo.Context) error {
	return c.JSON(http.StatusOK, Registry())
}
