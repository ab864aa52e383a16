package services

import (
	"context"
	"mime/multipart"
	"net/url"
	"testing"

	"userform_payments/internal/models"
)

func TestRequiredFields(t *testing.T) {
	db := newTestDB(t)
	registry := NewGatewayRegistry(&fakeGateway{name: "Omise"})
	form := newTestForm(t, db, "Omise", func(f *models.PaymentForm) {
		f.PaymentFieldsCard = true
		f.PaymentFieldsBilling = true
		f.Fields = append(f.Fields, models.FormField{Kind: models.FieldKindText, Required: true, Sort: 5})
	})
	builder := NewFormBuilder(registry, nil)

	required := map[string]bool{}
	for _, name := range builder.RequiredFields(form) {
		if required[name] {
			t.Errorf("%s listed twice", name)
		}
		required[name] = true
	}

	for _, name := range []string{"Name", "Amount", "name", "number", "expiryMonth", "expiryYear", "cvv",
		"billingAddress1", "city", "postcode", "state", "country", "phone"} {
		if !required[name] {
			t.Errorf("%s should be required", name)
		}
	}
	for _, name := range []string{"billingAddress2", "Email", ""} {
		if required[name] {
			t.Errorf("%q should not be required", name)
		}
	}
}

func TestBuildRepopulatesFromSession(t *testing.T) {
	db := newTestDB(t)
	registry := NewGatewayRegistry(&fakeGateway{name: "Omise"})
	form := newTestForm(t, db, "Omise", func(f *models.PaymentForm) {
		f.PaymentFieldsCard = true
		f.PaymentFieldsBilling = true
	})
	builder := NewFormBuilder(registry, nil)
	rc := newRequestContext()
	ctx := context.Background()

	data := url.Values{"Name": {"Jane"}, "Amount": {"12.50"}, "number": {"4242424242424242"}, "city": {"Perth"}}
	if err := builder.StashFailedSubmission(ctx, form, rc.Session, data, map[string]string{"Email": "Email is required"}); err != nil {
		t.Fatal(err)
	}

	rendered, err := builder.Build(ctx, form, rc)
	if err != nil {
		t.Fatal(err)
	}

	if rendered.Action != "/forms/donate/Form" {
		t.Errorf("Action = %q", rendered.Action)
	}
	byName := map[string]RenderField{}
	for _, f := range rendered.Fields {
		byName[f.Name] = f
	}
	for _, f := range rendered.PaymentGroup.Fields {
		byName[f.Name] = f
	}

	if byName["Name"].Value != "Jane" || byName["Amount"].Value != "12.50" {
		t.Errorf("generic values not repopulated: %+v", rendered.Fields)
	}
	if byName["Email"].Error != "Email is required" {
		t.Errorf("Email error = %q", byName["Email"].Error)
	}
	if byName["city"].Value != "Perth" {
		t.Errorf("city = %q", byName["city"].Value)
	}
	if byName["number"].Value != "" {
		t.Error("card number must never be repopulated")
	}
	if byName["billingAddress1"].Title != "Address Line 1" || byName["billingAddress2"].Title != "Address Line 2" {
		t.Errorf("billing titles = %q, %q", byName["billingAddress1"].Title, byName["billingAddress2"].Title)
	}
	if rendered.PaymentGroup.Class != "omise_fields" {
		t.Errorf("Class = %q", rendered.PaymentGroup.Class)
	}

	if rendered.SecurityID == "" {
		t.Fatal("expected a security token")
	}
	var stored string
	if _, err := rc.Session.Get(ctx, SessionKeySecurityID, &stored); err != nil || stored != rendered.SecurityID {
		t.Errorf("session token = %q; want %q", stored, rendered.SecurityID)
	}

	again, err := builder.Build(ctx, form, rc)
	if err != nil {
		t.Fatal(err)
	}
	if again.SecurityID != rendered.SecurityID {
		t.Error("token should be stable within a session")
	}
}

func TestBuildWithUnknownGateway(t *testing.T) {
	db := newTestDB(t)
	form := newTestForm(t, db, "Nope", func(f *models.PaymentForm) {
		f.PaymentFieldsBilling = true
	})
	rendered, err := NewFormBuilder(NewGatewayRegistry(), nil).Build(context.Background(), form, newRequestContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(rendered.PaymentGroup.Fields) != 0 {
		t.Errorf("payment group = %+v; want empty", rendered.PaymentGroup.Fields)
	}
	if len(rendered.Fields) != 4 {
		t.Errorf("got %d generic fields", len(rendered.Fields))
	}
}

func TestBuildFormFieldsHook(t *testing.T) {
	db := newTestDB(t)
	form := newTestForm(t, db, "PayPal", nil)
	hooks := &Hooks{
		FormFields: []func(context.Context, *models.PaymentForm, *RenderedForm){
			func(ctx context.Context, f *models.PaymentForm, r *RenderedForm) {
				r.SubmitText = "Pay now"
			},
		},
	}
	rendered, err := NewFormBuilder(NewGatewayRegistry(&fakeGateway{name: "PayPal", offsite: true}), hooks).
		Build(context.Background(), form, newRequestContext())
	if err != nil {
		t.Fatal(err)
	}
	if rendered.SubmitText != "Pay now" {
		t.Errorf("SubmitText = %q", rendered.SubmitText)
	}
}

func TestValidateSubmission(t *testing.T) {
	db := newTestDB(t)
	registry := NewGatewayRegistry(&fakeGateway{name: "PayPal", offsite: true})
	form := newTestForm(t, db, "PayPal", func(f *models.PaymentForm) {
		f.PaymentFieldsEmail = true
		f.DisableSecurityToken = true
	})
	builder := NewFormBuilder(registry, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		data    url.Values
		wantErr []string
	}{
		{
			name: "complete",
			data: url.Values{"Name": {"Jane"}, "Amount": {"25.00"}, "email": {"jane@example.com"}},
		},
		{
			name:    "missing everything",
			data:    url.Values{},
			wantErr: []string{"Name", "Amount", "email"},
		},
		{
			name:    "blank name",
			data:    url.Values{"Name": {"   "}, "Amount": {"5"}, "email": {"a@b.c"}},
			wantErr: []string{"Name"},
		},
		{
			name:    "bad amount",
			data:    url.Values{"Name": {"Jane"}, "Amount": {"lots"}, "email": {"a@b.c"}},
			wantErr: []string{"Amount"},
		},
		{
			name:    "zero amount",
			data:    url.Values{"Name": {"Jane"}, "Amount": {"0"}, "email": {"a@b.c"}},
			wantErr: []string{"Amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := builder.ValidateSubmission(ctx, form, tt.data, nil, newRequestContext().Session)
			if err != nil {
				t.Fatal(err)
			}
			if len(errs) != len(tt.wantErr) {
				t.Errorf("errs = %v; want keys %v", errs, tt.wantErr)
			}
			for _, key := range tt.wantErr {
				if errs[key] == "" {
					t.Errorf("missing error for %s", key)
				}
			}
		})
	}

	errs, _ := builder.ValidateSubmission(ctx, form, url.Values{}, nil, newRequestContext().Session)
	if errs["Name"] != "Your name is required" {
		t.Errorf("Name message = %q", errs["Name"])
	}
}

func TestValidateSubmissionRequiredUpload(t *testing.T) {
	db := newTestDB(t)
	form := newTestForm(t, db, "PayPal", func(f *models.PaymentForm) {
		f.DisableSecurityToken = true
		f.Fields[3].Required = true
		f.Fields[3].CustomErrorMessage = "Attach your receipt"
	})
	builder := NewFormBuilder(NewGatewayRegistry(&fakeGateway{name: "PayPal", offsite: true}), nil)
	data := url.Values{"Name": {"Jane"}, "Amount": {"10"}}

	errs, err := builder.ValidateSubmission(context.Background(), form, data, nil, newRequestContext().Session)
	if err != nil {
		t.Fatal(err)
	}
	if errs["Receipt"] != "Attach your receipt" {
		t.Errorf("errs = %v", errs)
	}

	files := map[string][]*multipart.FileHeader{"Receipt": {fileHeader(t, "Receipt", "r.pdf", []byte("%PDF"))}}
	errs, err = builder.ValidateSubmission(context.Background(), form, data, files, newRequestContext().Session)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v; want none", errs)
	}
}

func TestValidateSubmissionSecurityToken(t *testing.T) {
	db := newTestDB(t)
	form := newTestForm(t, db, "PayPal", nil)
	builder := NewFormBuilder(NewGatewayRegistry(&fakeGateway{name: "PayPal", offsite: true}), nil)
	ctx := context.Background()
	rc := newRequestContext()

	token, err := EnsureSecurityToken(ctx, rc.Session)
	if err != nil {
		t.Fatal(err)
	}
	data := url.Values{"Name": {"Jane"}, "Amount": {"10"}}

	data.Set("SecurityID", "forged")
	errs, err := builder.ValidateSubmission(ctx, form, data, nil, rc.Session)
	if err != nil {
		t.Fatal(err)
	}
	if errs[FormErrorKey] == "" || len(errs) != 1 {
		t.Errorf("forged token errs = %v", errs)
	}

	data.Set("SecurityID", token)
	errs, err = builder.ValidateSubmission(ctx, form, data, nil, rc.Session)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Errorf("valid token errs = %v", errs)
	}

	errs, _ = builder.ValidateSubmission(ctx, form, data, nil, newRequestContext().Session)
	if errs[FormErrorKey] == "" {
		t.Error("a session without a token must be rejected")
	}
}
