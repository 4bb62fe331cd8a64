package gateway

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/taskterm/taskterm/pkg/authz"
)

const principalContextKey = "principal"

// identityMiddleware resolves the acting principal for every request,
// standing in for the external identity provider. Two sources are
// supported: a static API-key table from the config, and trusted
// forwarded headers set by an authenticating front proxy.
func (g *Gateway) identityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// CORS preflight and liveness need no identity.
			if c.Request().Method == http.MethodOptions || c.Request().URL.Path == "/health" {
				return next(c)
			}

			if key := c.Request().Header.Get(g.config.Auth.HeaderName); key != "" {
				if entry, ok := g.config.LookupAPIKey(key); ok {
					c.Set(principalContextKey, authz.Principal{Name: entry.Name, Groups: entry.Groups})
					return next(c)
				}
				log.Printf("[AUTH_FAILED] unknown API key from %s", c.RealIP())
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}

			if g.config.Auth.TrustForwardedHeaders {
				if name := c.Request().Header.Get("X-Forwarded-User"); name != "" {
					principal := authz.Principal{Name: name}
					if groups := c.Request().Header.Get("X-Forwarded-Groups"); groups != "" {
						for _, group := range strings.Split(groups, ",") {
							if group = strings.TrimSpace(group); group != "" {
								principal.Groups = append(principal.Groups, group)
							}
						}
					}
					c.Set(principalContextKey, principal)
					return next(c)
				}
			}

			if g.config.Auth.Enabled {
				log.Printf("[AUTH_FAILED] no credentials from %s", c.RealIP())
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			// Enforcement is off: proceed as an anonymous principal.
			c.Set(principalContextKey, authz.Principal{Name: "anonymous"})
			return next(c)
		}
	}
}

// principalFrom returns the principal resolved by identityMiddleware.
func principalFrom(c echo.Context) authz.Principal {
	if principal, ok := c.Get(principalContextKey).(authz.Principal); ok {
		return principal
	}
	return authz.Principal{Name: "anonymous"}
}

// accessTokenFrom extracts an optional delegation token from the request.
func accessTokenFrom(c echo.Context) string {
	if token := c.QueryParam("access_token"); token != "" {
		return token
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
