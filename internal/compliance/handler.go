package compliance

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/authz"
	"github.com/caregate/caregate/pkg/pagination"
)

// Handler exposes compliance reports and the audit trail over HTTP.
type Handler struct {
	reporter   *Reporter
	rec        *audit.Recorder
	authorizer *authz.Authorizer
}

// NewHandler creates a Handler.
func NewHandler(reporter *Reporter, rec *audit.Recorder, authorizer *authz.Authorizer) *Handler {
	return &Handler{reporter: reporter, rec: rec, authorizer: authorizer}
}

// RegisterRoutes registers the compliance and audit API routes. None of
// them act on patient-owned resources, so the capability gate carries no
// owner parameter.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/compliance/report", h.Report, authz.Require(h.authorizer, "generate_compliance_report", ""))
	api.GET("/audit/events", h.Events, authz.Require(h.authorizer, "view_audit_log", ""))
	api.GET("/audit/export", h.Export, authz.Require(h.authorizer, "export_audit_log", ""))
}

// window parses the start/end query params. end defaults to now and start
// to 30 days before end.
func (h *Handler) window(c echo.Context) (time.Time, time.Time, error) {
	end := h.reporter.clock.Now()
	if raw := c.QueryParam("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end must be RFC 3339")
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -30)
	if raw := c.QueryParam("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start must be RFC 3339")
		}
		start = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end is before start")
	}
	return start, end, nil
}

// Report generates a compliance report for the requested window.
func (h *Handler) Report(c echo.Context) error {
	start, end, err := h.window(c)
	if err != nil {
		return err
	}
	report, err := h.reporter.Generate(c.Request().Context(), start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// Events returns audit events within the window, oldest first.
func (h *Handler) Events(c echo.Context) error {
	start, end, err := h.window(c)
	if err != nil {
		return err
	}

	page := pagination.FromContext(c)
	q := audit.Query{
		From:         start,
		To:           end,
		PrincipalID:  c.QueryParam("principal_id"),
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		Result:       audit.Result(c.QueryParam("result")),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	events, err := h.rec.QueryEvents(c.Request().Context(), q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*audit.Event{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, len(events), page))
}

// Export streams the window's audit events as CSV.
func (h *Handler) Export(c echo.Context) error {
	start, end, err := h.window(c)
	if err != nil {
		return err
	}
	events, err := h.rec.QueryEvents(c.Request().Context(), audit.Query{From: start, To: end})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="audit-export.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return audit.WriteCSV(c.Response(), events)
}
