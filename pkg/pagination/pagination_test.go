package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContextDefaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v, want default limit and zero offset", p)
	}
}

func TestFromContextBounds(t *testing.T) {
	p := paramsFor(t, "limit=10000&offset=-5")
	if p.Limit != MaxLimit {
		t.Errorf("limit = %d, want capped at %d", p.Limit, MaxLimit)
	}
	if p.Offset != 0 {
		t.Errorf("offset = %d, want clamped to 0", p.Offset)
	}
}

func TestFromContextExplicit(t *testing.T) {
	p := paramsFor(t, "limit=25&offset=75")
	if p.Limit != 25 || p.Offset != 75 {
		t.Errorf("params = %+v, want 25/75", p)
	}
	if p.NextOffset() != 100 {
		t.Errorf("next offset = %d, want 100", p.NextOffset())
	}
}

func TestNewResponseHasMore(t *testing.T) {
	p := Params{Limit: 10, Offset: 0}
	full := NewResponse([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10, p)
	if !full.HasMore {
		t.Error("full page should report has_more")
	}
	partial := NewResponse([]int{1, 2}, 2, p)
	if partial.HasMore {
		t.Error("partial page should not report has_more")
	}
}
