package middleware

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

// ContextKeyMember holds the signed-in *models.Member, if any
const ContextKeyMember = "member"

// SessionCookieVerifier is satisfied by *auth.Client
type SessionCookieVerifier interface {
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
}

// OptionalAuth resolves the visitor from a Firebase session cookie when one
// is present. Visitors without a valid cookie continue anonymously.
func OptionalAuth(verifier SessionCookieVerifier, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return next(c)
			}

			cookie, err := c.Cookie("session")
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			decodedToken, err := verifier.VerifySessionCookie(c.Request().Context(), cookie.Value)
			if err != nil {
				// Invalid session, clear cookie and carry on anonymously
				c.SetCookie(&http.Cookie{
					Name:     "session",
					Value:    "",
					MaxAge:   -1,
					HttpOnly: true,
					Path:     "/",
				})
				return next(c)
			}

			email, _ := decodedToken.Claims["email"].(string)
			name, _ := decodedToken.Claims["name"].(string)

			var member models.Member
			err = db.WithContext(c.Request().Context()).
				Where(models.Member{FirebaseUID: decodedToken.UID}).
				Attrs(models.Member{Email: email, Name: name}).
				FirstOrCreate(&member).Error
			if err != nil {
				c.Logger().Errorf("failed to resolve member %s: %v", decodedToken.UID, err)
				return next(c)
			}

			c.Set(ContextKeyMember, &member)
			c.Set("userUID", decodedToken.UID)
			c.Set("userEmail", email)
			return next(c)
		}
	}
}
