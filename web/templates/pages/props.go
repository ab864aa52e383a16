package pages

import (
	"userform_payments/internal/services"
	"userform_payments/web/templates/shared"
)

type FormPageProps struct {
	Title       string
	Breadcrumbs []shared.Breadcrumb
	Content     string
	Form        *services.RenderedForm
}

type FinishedPageProps struct {
	Title       string
	Breadcrumbs []shared.Breadcrumb
	Message     string // administrator HTML with the amount filled in
	Referrer    string
	Form        *services.RenderedForm // shown again unless the payment was captured
}

type PaymentErrorPageProps struct {
	Title       string
	Breadcrumbs []shared.Breadcrumb
	Message     string // administrator HTML
	Detail      string // gateway message
	FormLink    string
}

type ErrorPageProps struct {
	Title        string
	Breadcrumbs  []shared.Breadcrumb
	ErrorTitle   string
	ErrorMessage string
	BackLink     string
	BackText     string
}

func (p ErrorPageProps) backText() string {
	if p.BackText == "" {
		return "Go back"
	}
	return p.BackText
}

// choiceType is the input type of one option of a radio or checkbox group
func choiceType(fieldType string) string {
	if fieldType == "checkboxgroup" {
		return "checkbox"
	}
	return "radio"
}

func hasValue(fieldType string) bool {
	return fieldType != "file" && fieldType != "password"
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
