package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"log"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"userform_payments/internal/models"
	"userform_payments/web/templates/emails"
)

// Attachment is a file sent along with a notification
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Email is a fully assembled notification
type Email struct {
	From        string
	To          string
	ReplyTo     string
	Subject     string
	Body        string
	Plain       bool
	Attachments []Attachment
}

// Mailer delivers a single email
type Mailer interface {
	Send(ctx context.Context, email *Email) error
}

// EmailData is the template data shared by every recipient of a submission
type EmailData struct {
	Sender        *models.Member
	Fields        []models.SubmittedFormField
	Payment       *models.Payment
	ReceiptNumber string
	Extra         map[string]interface{}
}

// PaymentStatus is the status shown in notifications
func (d *EmailData) PaymentStatus() string {
	if d.Payment == nil {
		return "Error"
	}
	return string(d.Payment.Status)
}

// AmountNice is the formatted payment amount shown in notifications
func (d *EmailData) AmountNice() string {
	if d.Payment == nil {
		return ""
	}
	return d.Payment.AmountNice()
}

var strictPolicy = bluemonday.StrictPolicy()

// StripTags turns administrator HTML into plain text
func StripTags(s string) string {
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// FilteredEmailRecipients returns the form's recipients that want mail for status
func FilteredEmailRecipients(form *models.PaymentForm, status models.PaymentStatus) []models.EmailRecipient {
	var out []models.EmailRecipient
	for _, recipient := range form.EmailRecipients {
		if recipient.SendForStatus(status) {
			out = append(out, recipient)
		}
	}
	return out
}

// Dispatcher emails a submission to the form's configured recipients
type Dispatcher struct {
	db       *gorm.DB
	mailer   Mailer
	files    FileStore
	payments *PaymentService
	hooks    *Hooks
}

func NewDispatcher(db *gorm.DB, mailer Mailer, files FileStore, payments *PaymentService, hooks *Hooks) *Dispatcher {
	return &Dispatcher{db: db, mailer: mailer, files: files, payments: payments, hooks: hooks}
}

// SendToRecipients sends one email per recipient and stops at the first failure
func (d *Dispatcher) SendToRecipients(ctx context.Context, recipients []models.EmailRecipient, attachments []models.File, data *EmailData) error {
	if data == nil {
		data = &EmailData{}
	}
	fields := data.Fields
	if data.Payment != nil && data.ReceiptNumber == "" && d.payments != nil {
		data.ReceiptNumber = d.payments.ReceiptNumber(ctx, data.Payment.ID)
	}

	files, err := d.loadAttachments(ctx, attachments)
	if err != nil {
		return err
	}

	for i := range recipients {
		recipient := &recipients[i]
		email := &Email{
			From:        recipient.EmailFrom,
			To:          recipient.EmailAddress,
			ReplyTo:     recipient.EmailReplyTo,
			Subject:     recipient.EmailSubject,
			Body:        recipient.EmailBody,
			Attachments: files,
		}

		if field := d.fieldValue(ctx, fields, recipient.SendEmailFromFieldID, recipient.SendEmailFromField); field != nil && field.IsTextual() && field.Value != "" {
			email.ReplyTo = field.Value
		}
		if field := d.fieldValue(ctx, fields, recipient.SendEmailToFieldID, recipient.SendEmailToField); field != nil && field.IsTextual() && field.Value != "" {
			email.To = field.Value
		}
		if field := d.fieldValue(ctx, fields, recipient.SendEmailSubjectFieldID, recipient.SendEmailSubjectField); field != nil && strings.TrimSpace(field.Value) != "" {
			email.Subject = field.Value
		}

		d.hooks.emailAssembled(ctx, email, recipient, data)

		if recipient.SendPlain {
			var body strings.Builder
			body.WriteString(StripTags(email.Body))
			body.WriteString("\n")
			if !recipient.HideFormData {
				for _, field := range fields {
					fmt.Fprintf(&body, "%s - %s \n", field.Title, field.Value)
				}
			}
			email.Body = body.String()
			email.Plain = true
		} else {
			var buf bytes.Buffer
			err := emails.SubmissionEmail(emails.SubmissionEmailProps{
				Subject:       email.Subject,
				Body:          email.Body,
				Fields:        fields,
				HideFormData:  recipient.HideFormData,
				Amount:        data.AmountNice(),
				Status:        data.PaymentStatus(),
				ReceiptNumber: data.ReceiptNumber,
			}).Render(ctx, &buf)
			if err != nil {
				return fmt.Errorf("render email for %s: %w", email.To, err)
			}
			email.Body = buf.String()
		}

		if err := d.mailer.Send(ctx, email); err != nil {
			return fmt.Errorf("send email to %s: %w", email.To, err)
		}
	}
	return nil
}

// fieldValue finds the submitted value of the form field a recipient points at
func (d *Dispatcher) fieldValue(ctx context.Context, fields []models.SubmittedFormField, id *uint, field *models.FormField) *models.SubmittedFormField {
	if id == nil || *id == 0 {
		return nil
	}
	if field == nil {
		var f models.FormField
		if err := d.db.WithContext(ctx).First(&f, *id).Error; err != nil {
			log.Printf("Email recipient field %d not found: %v", *id, err)
			return nil
		}
		field = &f
	}
	for i := range fields {
		if fields[i].Name == field.Name {
			return &fields[i]
		}
	}
	return nil
}

func (d *Dispatcher) loadAttachments(ctx context.Context, files []models.File) ([]Attachment, error) {
	var out []Attachment
	for _, file := range files {
		if file.ID == 0 {
			continue
		}
		r, err := d.files.Open(ctx, file.Filename)
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", file.Filename, err)
		}
		content, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", file.Filename, err)
		}
		out = append(out, Attachment{
			Filename:    file.Name,
			ContentType: file.ContentType,
			Content:     content,
		})
	}
	return out, nil
}
