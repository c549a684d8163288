package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims is the token shape the external identity provider issues: standard
// registered claims plus a single role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// JWTMiddleware validates an HS256 bearer token and places the resulting
// Principal into the request context. Requests without a valid token are
// rejected with 401.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
				}
				return cfg.SigningKey, nil
			}, jwt.WithIssuer(cfg.Issuer), jwt.WithAudience(cfg.Audience))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" || claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing subject or role")
			}

			ctx := WithPrincipal(c.Request().Context(), Principal{
				ID:   claims.Subject,
				Role: claims.Role,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevMiddleware injects a fixed admin principal. Development only; the
// server refuses to start with it outside ENV=development.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithPrincipal(c.Request().Context(), Principal{
				ID:   "dev-admin",
				Role: "admin",
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
