package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testJWTConfig = JWTConfig{
	Issuer:     "https://id.example.test",
	Audience:   "caregate",
	SigningKey: []byte("test-signing-key"),
}

func signToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWTConfig.Issuer,
			Audience:  jwt.ClaimStrings{testJWTConfig.Audience},
			Subject:   "dr-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "physician",
	}
}

func runJWT(t *testing.T, authorization string) (*httptest.ResponseRecorder, Principal, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)

	var got Principal
	var found bool
	next := func(c echo.Context) error {
		got, found = FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}
	if err := JWTMiddleware(testJWTConfig)(next)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rr, got, found
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	token := signToken(t, validClaims(), testJWTConfig.SigningKey)
	rr, p, found := runJWT(t, "Bearer "+token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !found || p.ID != "dr-1" || p.Role != "physician" {
		t.Fatalf("principal = %+v found=%v", p, found)
	}
}

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	rr, _, _ := runJWT(t, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestJWTMiddlewareRejectsWrongKey(t *testing.T) {
	token := signToken(t, validClaims(), []byte("some-other-key"))
	rr, _, _ := runJWT(t, "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestJWTMiddlewareRejectsWrongIssuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "https://evil.example.test"
	token := signToken(t, claims, testJWTConfig.SigningKey)
	rr, _, _ := runJWT(t, "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signToken(t, claims, testJWTConfig.SigningKey)
	rr, _, _ := runJWT(t, "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestJWTMiddlewareRequiresSubjectAndRole(t *testing.T) {
	claims := validClaims()
	claims.Role = ""
	token := signToken(t, claims, testJWTConfig.SigningKey)
	rr, _, _ := runJWT(t, "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestDevMiddlewareInjectsAdmin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var got Principal
	next := func(c echo.Context) error {
		got, _ = FromContext(c.Request().Context())
		return nil
	}
	if err := DevMiddleware()(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if got.Role != "admin" {
		t.Fatalf("principal = %+v, want admin role", got)
	}
}
