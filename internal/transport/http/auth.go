package http

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const claimsContextKey = "clinica_claims"

// CapabilityManageAppointments guards every write on the booking API. Read
// endpoints only need a valid token.
const CapabilityManageAppointments = "appointments:manage"

type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasCapability reports whether the token may perform the given action.
// Admins and wildcard permissions pass everything.
func (c *Claims) HasCapability(capability string) bool {
	if c.Role == "admin" {
		return true
	}
	for _, p := range c.Permissions {
		if p == "*" || p == capability {
			return true
		}
	}
	return false
}

// Authenticate validates the Bearer token with the shared HMAC secret and
// stores the claims on the echo context.
func Authenticate(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// RequireCapability rejects authenticated requests whose claims lack the
// capability. It must run after Authenticate.
func RequireCapability(capability string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(claimsContextKey).(*Claims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token claims")
			}
			if !claims.HasCapability(capability) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}
