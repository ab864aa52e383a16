package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the public form, payment and sign-in endpoints
func RegisterRoutes(e *echo.Echo, public *PublicHandler, payments *PaymentHandler, auth *AuthHandler) {
	e.GET("/health", Health)
	e.POST("/auth/login", auth.HandleLogin)
	e.POST("/auth/logout", auth.HandleLogout)

	forms := e.Group("/forms/:slug")
	forms.GET("", public.Index)
	forms.GET("/Form", public.Form)
	forms.POST("/Form", public.Process)
	forms.GET("/finished", public.Finished)
	forms.GET("/error", public.Error)
	forms.GET("/ping", public.Ping)

	e.GET("/payment/:identifier/complete", payments.Complete)
	e.POST("/payment/:identifier/complete", payments.Complete)
	e.POST("/payment/notify/:gateway", payments.Notify)

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "userform payments")
	})
}
