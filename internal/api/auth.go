package api

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
)

const signedInKey = "signedIn"

// AuthConfig controls how the signed-in flag is derived.
type AuthConfig struct {
	Required bool
	Token    string
}

// Auth sets the signed-in flag on every request. It never rejects a
// request; handlers decide what an anonymous caller may do.
func Auth(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(signedInKey, cfg.signedIn(c))
			return next(c)
		}
	}
}

func (cfg AuthConfig) signedIn(c echo.Context) bool {
	if !cfg.Required {
		return true
	}
	if cfg.Token == "" {
		return false
	}
	token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		// Browsers cannot set headers on websocket upgrades.
		token = c.QueryParam("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) == 1
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SignedIn reports the flag set by Auth. Requests that did not pass
// through Auth are treated as signed out.
func SignedIn(c echo.Context) bool {
	v, _ := c.Get(signedInKey).(bool)
	return v
}
