package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"userform_payments/internal/services"
)

const (
	// ContextKeySession holds the visitor's services.SessionStore
	ContextKeySession = "session"

	sessionCookieName = "pf_session"
)

// Session gives every visitor a session id cookie and opens their store
func Session(provider services.SessionProvider, ttl time.Duration, secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if cookie, err := c.Cookie(sessionCookieName); err == nil {
				if parsed, err := uuid.Parse(cookie.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			c.SetCookie(&http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			c.Set(ContextKeySession, provider.Session(id))
			return next(c)
		}
	}
}
