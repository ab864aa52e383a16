package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"userform_payments/web/templates/pages"
	"userform_payments/web/templates/shared"
)

// CustomErrorHandler creates a custom error handler for Echo
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		c.Logger().Error(err)
		return
	}

	code := http.StatusInternalServerError
	errorTitle := "Internal Server Error"
	errorMessage := ""

	// Check if it's an Echo HTTPError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code

		if msg, ok := he.Message.(string); ok && msg != "" {
			errorMessage = msg
		}

		switch code {
		case http.StatusNotFound:
			errorTitle = "Page Not Found"
			if errorMessage == "" {
				errorMessage = "The page you're looking for doesn't exist."
			}
		case http.StatusForbidden:
			errorTitle = "Access Denied"
			if errorMessage == "" {
				errorMessage = "You don't have permission to access this resource."
			}
		case http.StatusBadRequest:
			errorTitle = "Bad Request"
			if errorMessage == "" {
				errorMessage = "The request could not be processed."
			}
		case http.StatusMethodNotAllowed:
			errorTitle = "Method Not Allowed"
			if errorMessage == "" {
				errorMessage = "This page does not accept that kind of request."
			}
		default:
			if errorMessage == "" {
				errorMessage = "Something went wrong. Please try again later."
			}
		}
	} else {
		errorMessage = "Something went wrong. Please try again later."
	}

	c.Logger().Error(err)

	// Webhooks and API callers get JSON
	if c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON {
		if jerr := c.JSON(code, map[string]string{"error": errorMessage}); jerr != nil {
			c.Logger().Error(jerr)
		}
		return
	}

	props := pages.ErrorPageProps{
		Title: errorTitle,
		Breadcrumbs: []shared.Breadcrumb{
			{Title: "Home", URL: "/"},
			{Title: "Error", URL: ""},
		},
		ErrorTitle:   errorTitle,
		ErrorMessage: errorMessage,
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	if renderErr := pages.ErrorPage(props).Render(c.Request().Context(), c.Response()); renderErr != nil {
		// Fallback to plain text if template fails
		c.Logger().Error(fmt.Errorf("failed to render error page: %w", renderErr))
		c.String(code, errorMessage)
	}
}
