package handlers

import (
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"userform_payments/internal/middleware"
	"userform_payments/internal/models"
	"userform_payments/internal/services"
	"userform_payments/web/templates/pages"
	"userform_payments/web/templates/shared"
)

// PublicHandler serves the public pages of payment forms
type PublicHandler struct {
	db         *gorm.DB
	builder    *services.FormBuilder
	processor  *services.SubmissionProcessor
	completion *services.CompletionHandler
	appURL     string
}

func NewPublicHandler(db *gorm.DB, builder *services.FormBuilder, processor *services.SubmissionProcessor, completion *services.CompletionHandler, appURL string) *PublicHandler {
	return &PublicHandler{
		db:         db,
		builder:    builder,
		processor:  processor,
		completion: completion,
		appURL:     appURL,
	}
}

func (h *PublicHandler) loadForm(c echo.Context) (*models.PaymentForm, error) {
	slug := c.Param("slug")
	if slug == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid form")
	}

	var form models.PaymentForm
	err := h.db.WithContext(c.Request().Context()).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("sort asc, id asc") }).
		Preload("EmailRecipients").
		Preload("EmailRecipients.SendEmailFromField").
		Preload("EmailRecipients.SendEmailToField").
		Preload("EmailRecipients.SendEmailSubjectField").
		Where("url_segment = ?", slug).
		First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "Form not found")
		}
		return nil, err
	}
	return &form, nil
}

func breadcrumbs(form *models.PaymentForm) []shared.Breadcrumb {
	return []shared.Breadcrumb{
		{Title: "Home", URL: "/"},
		{Title: form.Title, URL: form.Link("")},
	}
}

// Index renders the form page
func (h *PublicHandler) Index(c echo.Context) error {
	form, err := h.loadForm(c)
	if err != nil {
		return err
	}
	rc, err := requestContext(c)
	if err != nil {
		return err
	}

	rendered, err := h.builder.Build(c.Request().Context(), form, rc)
	if err != nil {
		return err
	}

	props := pages.FormPageProps{
		Title:       form.Title,
		Breadcrumbs: breadcrumbs(form),
		Content:     form.Content,
		Form:        rendered,
	}
	return render(c, http.StatusOK, pages.FormPage(props))
}

// Form renders the bare form, for embedding
func (h *PublicHandler) Form(c echo.Context) error {
	form, err := h.loadForm(c)
	if err != nil {
		return err
	}
	rc, err := requestContext(c)
	if err != nil {
		return err
	}

	rendered, err := h.builder.Build(c.Request().Context(), form, rc)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, pages.PaymentForm(rendered))
}

// Process validates and processes a submission, then sends the visitor
// on to the gateway or to the finished page.
func (h *PublicHandler) Process(c echo.Context) error {
	form, err := h.loadForm(c)
	if err != nil {
		return err
	}
	rc, err := requestContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	data, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid form submission")
	}
	files := map[string][]*multipart.FileHeader{}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		mf, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid form submission")
		}
		files = mf.File
	}

	errs, err := h.builder.ValidateSubmission(ctx, form, data, files, rc.Session)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		if err := h.builder.StashFailedSubmission(ctx, form, rc.Session, data, errs); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, form.Link(""))
	}

	result, err := h.processor.Process(ctx, services.ProcessInput{
		Form:         form,
		Data:         data,
		Files:        files,
		Request:      rc,
		FinishedLink: h.appURL + form.Link("finished"),
	})
	if err != nil {
		var uploadErr *services.UploadValidationError
		if errors.As(err, &uploadErr) {
			return c.Redirect(http.StatusSeeOther, form.Link(""))
		}
		var gatewayErr *services.GatewayError
		if errors.As(err, &gatewayErr) {
			log.Printf("Payment for form %s failed: %v", form.URLSegment, gatewayErr)
			return h.renderPaymentError(c, form, gatewayErr.Message)
		}
		return err
	}

	return result.Response.RedirectOrRespond(c.Response(), c.Request())
}

// Finished shows the completion message once per processed submission
func (h *PublicHandler) Finished(c echo.Context) error {
	form, err := h.loadForm(c)
	if err != nil {
		return err
	}
	rc, err := requestContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	result, err := h.completion.Finish(ctx, form, rc, c.QueryParam("referrer"))
	if err != nil {
		return err
	}
	if result.Redirect {
		return c.Redirect(http.StatusSeeOther, result.RedirectURL)
	}

	props := pages.FinishedPageProps{
		Title:       form.Title,
		Breadcrumbs: breadcrumbs(form),
		Message:     result.OnSuccessMessage,
		Referrer:    result.Referrer,
	}
	if result.ShowForm {
		rendered, err := h.builder.Build(ctx, form, rc)
		if err != nil {
			return err
		}
		props.Form = rendered
	}
	return render(c, http.StatusOK, pages.FinishedPage(props))
}

// Error shows the form's payment error message
func (h *PublicHandler) Error(c echo.Context) error {
	form, err := h.loadForm(c)
	if err != nil {
		return err
	}
	return h.renderPaymentError(c, form, "")
}

// Ping keeps the visitor's session alive while they fill in a long form
func (h *PublicHandler) Ping(c echo.Context) error {
	rc, err := requestContext(c)
	if err != nil {
		return err
	}
	if err := rc.Session.Touch(c.Request().Context()); err != nil {
		return err
	}
	return c.String(http.StatusOK, "1")
}

func (h *PublicHandler) renderPaymentError(c echo.Context, form *models.PaymentForm, detail string) error {
	props := pages.PaymentErrorPageProps{
		Title:       form.Title,
		Breadcrumbs: breadcrumbs(form),
		Message:     form.OnErrorMessage,
		Detail:      detail,
		FormLink:    form.Link(""),
	}
	return render(c, http.StatusOK, pages.PaymentErrorPage(props))
}

// requestContext collects the visitor identity set up by the middleware
func requestContext(c echo.Context) (services.RequestContext, error) {
	session, ok := c.Get(middleware.ContextKeySession).(services.SessionStore)
	if !ok {
		return services.RequestContext{}, errors.New("session middleware not installed")
	}
	member, _ := c.Get(middleware.ContextKeyMember).(*models.Member)
	return services.RequestContext{CurrentUser: member, Session: session}, nil
}
