package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"userform_payments/internal/services"
)

// maxNotificationBytes caps webhook bodies
const maxNotificationBytes = 1 << 20

// PaymentHandler handles gateway returns and notifications
type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Complete is where off-site gateways send the visitor back to
func (h *PaymentHandler) Complete(c echo.Context) error {
	identifier := c.Param("identifier")
	if identifier == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payment")
	}

	params, err := c.FormParams()
	if err != nil {
		params = c.QueryParams()
	}

	target, err := h.payments.Complete(c.Request().Context(), identifier, params)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
		}
		return err
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// Notify accepts asynchronous status notifications from a gateway
func (h *PaymentHandler) Notify(c echo.Context) error {
	gateway := c.Param("gateway")

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification body")
	}

	err = h.payments.ApplyNotification(c.Request().Context(), gateway, body)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, services.ErrUnknownGateway), errors.Is(err, services.ErrNotificationsUnsupported):
		return echo.NewHTTPError(http.StatusNotFound, "Unknown gateway")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
	default:
		log.Printf("Rejected %s notification: %v", gateway, err)
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification")
	}
}

// Health reports liveness
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
