package auth

import (
	"strings"

	xhttp "Aegis/pkg/http"

	"github.com/labstack/echo/v4"
)

const claimsContextKey = "auth.claims"

// Option configures Middleware.
type Option func(*options)

type options struct {
	queryToken bool
}

// AllowQueryToken also accepts the token query parameter. Only for
// websocket upgrades, where clients cannot set the Authorization header.
func AllowQueryToken() Option {
	return func(o *options) { o.queryToken = true }
}

// Middleware reads a bearer token from the Authorization header. With
// required set, requests without a valid token are rejected with 401;
// otherwise they continue anonymously.
func Middleware(v *Verifier, required bool, opts ...Option) echo.MiddlewareFunc {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := v.Parse(tokenFromRequest(c, o.queryToken))
			if err != nil {
				if required {
					return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError(err.Error()))
				}
				return next(c)
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom returns the verified claims, or nil for anonymous requests.
func ClaimsFrom(c echo.Context) *UserClaims {
	if v, ok := c.Get(claimsContextKey).(*UserClaims); ok {
		return v
	}
	return nil
}

func tokenFromRequest(c echo.Context, allowQuery bool) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if !allowQuery {
		return ""
	}
	return c.QueryParam("token")
}
