package emails

import "userform_payments/internal/models"

type SubmissionEmailProps struct {
	Subject       string
	Body          string // administrator HTML
	Fields        []models.SubmittedFormField
	HideFormData  bool
	Amount        string
	Status        string
	ReceiptNumber string
}
