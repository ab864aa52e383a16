package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"gorm.io/gorm"

	"userform_payments/internal/models"
)

const donationFormYAML = `
title: Donate
url_segment: donate
submit_button_text: Give now
payment:
  gateway: Manual
  currency: idr
  amount_field: Amount
  field_groups: [Billing]
fields:
  - name: Name
    title: Your name
    required: true
  - name: Email
    kind: email
  - name: Amount
    kind: numeric
    required: true
  - name: Notes
    kind: textarea
    hide_in_reports: true
recipients:
  - address: office@example.com
    from: forms@example.com
    subject: New donation
    send_for: [Captured]
  - to_field: Email
    from: forms@example.com
    subject: Thanks for your donation
`

func TestParseFormDefinition(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", donationFormYAML, ""},
		{"missing title", "url_segment: x\n", "title is required"},
		{"bad segment", "title: X\nurl_segment: a/b\n", "not a valid path segment"},
		{"unknown key", "title: X\nurl_segment: x\ncolour: red\n", "field colour not found"},
		{"duplicate field", "title: X\nurl_segment: x\nfields: [{name: A}, {name: A}]\n", "used twice"},
		{"unknown kind", "title: X\nurl_segment: x\nfields: [{name: A, kind: slider}]\n", "unknown kind"},
		{"amount not a field", "title: X\nurl_segment: x\npayment: {amount_field: Total}\n", "amount_field"},
		{"bad group", "title: X\nurl_segment: x\npayment: {field_groups: [Crypto]}\n", "payment field group"},
		{"recipient without target", "title: X\nurl_segment: x\nrecipients: [{subject: hi}]\n", "needs an address"},
		{"bad status", "title: X\nurl_segment: x\nrecipients: [{address: a@b.c, send_for: [Paid]}]\n", "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormDefinition(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v; want %q", err, tt.wantErr)
			}
		})
	}
}

func TestImportForm(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	registry := NewGatewayRegistry(ManualGateway{})

	def, err := ParseFormDefinition(strings.NewReader(donationFormYAML))
	if err != nil {
		t.Fatal(err)
	}
	form, err := ImportForm(ctx, db, def, registry)
	if err != nil {
		t.Fatal(err)
	}

	var got models.PaymentForm
	err = db.Preload("Fields").Preload("EmailRecipients").First(&got, form.ID).Error
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentCurrency != "IDR" || !got.PaymentFieldsBilling || got.PaymentFieldsCard {
		t.Errorf("form = %+v", got)
	}
	if got.OnCompleteMessage != models.DefaultOnCompleteMessage {
		t.Errorf("OnCompleteMessage = %q", got.OnCompleteMessage)
	}
	if len(got.Fields) != 4 || len(got.EmailRecipients) != 2 {
		t.Fatalf("fields = %d, recipients = %d", len(got.Fields), len(got.EmailRecipients))
	}

	byName := map[string]models.FormField{}
	for _, f := range got.Fields {
		byName[f.Name] = f
	}
	if got.PaymentAmountFieldID == nil || *got.PaymentAmountFieldID != byName["Amount"].ID {
		t.Errorf("amount field = %v", got.PaymentAmountFieldID)
	}
	if byName["Notes"].ShowInReports || !byName["Name"].ShowInReports {
		t.Errorf("show in reports: notes=%v name=%v", byName["Notes"].ShowInReports, byName["Name"].ShowInReports)
	}
	if byName["Name"].Kind != models.FieldKindText || byName["Email"].Title != "Email" {
		t.Errorf("defaults not applied: %+v %+v", byName["Name"], byName["Email"])
	}

	for _, r := range got.EmailRecipients {
		if r.EmailAddress == "" && (r.SendEmailToFieldID == nil || *r.SendEmailToFieldID != byName["Email"].ID) {
			t.Errorf("dynamic recipient not linked: %+v", r)
		}
	}

	if _, err := ImportForm(ctx, db, def, registry); !errors.Is(err, ErrFormExists) {
		t.Errorf("second import err = %v", err)
	}

	def.URLSegment = "donate-paypal"
	def.Payment.Gateway = "PayPal"
	if _, err := ImportForm(ctx, db, def, registry); !errors.Is(err, ErrUnknownGateway) {
		t.Errorf("unknown gateway err = %v", err)
	}
}

func TestImportedHiddenFieldIsNotRecorded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	registry := NewGatewayRegistry(ManualGateway{})

	def, err := ParseFormDefinition(strings.NewReader(donationFormYAML))
	if err != nil {
		t.Fatal(err)
	}
	imported, err := ImportForm(ctx, db, def, registry)
	if err != nil {
		t.Fatal(err)
	}

	var form models.PaymentForm
	err = db.Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort asc, id asc") }).
		First(&form, imported.ID).Error
	if err != nil {
		t.Fatal(err)
	}

	payments := NewPaymentService(db, registry, "https://example.com")
	processor := NewSubmissionProcessor(db, payments, NewUploader(db, newMemoryFileStore(), 1<<20, nil), nil)
	result, err := processor.Process(ctx, ProcessInput{
		Form: &form,
		Data: url.Values{
			"Name":   {"Jane"},
			"Email":  {"jane@example.com"},
			"Amount": {"50000"},
			"Notes":  {"secret"},
		},
		Request:      newRequestContext(),
		FinishedLink: "https://example.com" + form.Link("finished"),
	})
	if err != nil {
		t.Fatal(err)
	}

	var values []models.SubmittedFormField
	if err := db.Where("parent_id = ?", result.Submission.ID).Find(&values).Error; err != nil {
		t.Fatal(err)
	}
	names := map[string]string{}
	for _, v := range values {
		names[v.Name] = v.Value
	}
	if v, ok := names["Notes"]; ok {
		t.Errorf("hidden field Notes recorded with value %q", v)
	}
	if names["Name"] != "Jane" {
		t.Errorf("recorded values = %v", names)
	}
}
