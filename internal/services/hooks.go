package services

import (
	"context"

	"userform_payments/internal/models"
)

// Hooks are extension points called while a form is rendered, processed
// and mailed. Callbacks run in registration order and may mutate what
// they receive.
type Hooks struct {
	FormFields     []func(ctx context.Context, form *models.PaymentForm, rendered *RenderedForm)
	FieldPopulated []func(ctx context.Context, submitted *models.SubmittedFormField, field *models.FormField)
	EmailData      []func(ctx context.Context, data *EmailData, attachments *[]models.File)
	AfterProcess   []func(ctx context.Context, submission *models.SubmittedPaymentForm)
	EmailAssembled []func(ctx context.Context, email *Email, recipient *models.EmailRecipient, data *EmailData)
}

func (h *Hooks) formFields(ctx context.Context, form *models.PaymentForm, rendered *RenderedForm) {
	if h == nil {
		return
	}
	for _, fn := range h.FormFields {
		fn(ctx, form, rendered)
	}
}

func (h *Hooks) fieldPopulated(ctx context.Context, submitted *models.SubmittedFormField, field *models.FormField) {
	if h == nil {
		return
	}
	for _, fn := range h.FieldPopulated {
		fn(ctx, submitted, field)
	}
}

func (h *Hooks) emailData(ctx context.Context, data *EmailData, attachments *[]models.File) {
	if h == nil {
		return
	}
	for _, fn := range h.EmailData {
		fn(ctx, data, attachments)
	}
}

func (h *Hooks) afterProcess(ctx context.Context, submission *models.SubmittedPaymentForm) {
	if h == nil {
		return
	}
	for _, fn := range h.AfterProcess {
		fn(ctx, submission)
	}
}

func (h *Hooks) emailAssembled(ctx context.Context, email *Email, recipient *models.EmailRecipient, data *EmailData) {
	if h == nil {
		return
	}
	for _, fn := range h.EmailAssembled {
		fn(ctx, email, recipient, data)
	}
}
