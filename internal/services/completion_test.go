package services

import (
	"context"
	"errors"
	"mime/multipart"
	"net/url"
	"strings"
	"testing"

	"userform_payments/internal/models"
)

type completionFixture struct {
	*processorFixture
	mailer     *fakeMailer
	completion *CompletionHandler
}

func newCompletionFixture(t *testing.T, configure func(*models.PaymentForm)) *completionFixture {
	t.Helper()
	return newHookedCompletionFixture(t, configure, nil)
}

func newHookedCompletionFixture(t *testing.T, configure func(*models.PaymentForm), hooks *Hooks) *completionFixture {
	t.Helper()
	f := newProcessorFixture(t, configure, hooks)
	mailer := &fakeMailer{}
	dispatcher := NewDispatcher(f.db, mailer, f.store, f.payments, hooks)
	return &completionFixture{
		processorFixture: f,
		mailer:           mailer,
		completion:       NewCompletionHandler(f.db, dispatcher),
	}
}

func (f *completionFixture) finish(t *testing.T) *CompletionResult {
	t.Helper()
	var form models.PaymentForm
	if err := f.db.Preload("Fields").Preload("EmailRecipients").First(&form, f.form.ID).Error; err != nil {
		t.Fatal(err)
	}
	result, err := f.completion.Finish(context.Background(), &form, f.rc, "/events/gala")
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func (f *completionFixture) submit(t *testing.T, data url.Values, files map[string][]*multipart.FileHeader) {
	t.Helper()
	token, err := EnsureSecurityToken(context.Background(), f.rc.Session)
	if err != nil {
		t.Fatal(err)
	}
	data.Set("SecurityID", token)
	if _, err := f.process(data, files); err != nil {
		t.Fatal(err)
	}
}

func TestFinishCapturedPayment(t *testing.T) {
	f := newCompletionFixture(t, nil)
	f.submit(t, url.Values{"Name": {"Jane"}, "Amount": {"25.00"}}, nil)

	result := f.finish(t)
	if result.Redirect {
		t.Fatal("unexpected redirect")
	}
	if want := "<p>Thank you. Your payment of $25 has been processed.</p>"; result.OnSuccessMessage != want {
		t.Errorf("message = %q; want %q", result.OnSuccessMessage, want)
	}
	if result.ShowForm {
		t.Error("form should be hidden for a captured payment")
	}
	if result.Referrer != "/events/gala" {
		t.Errorf("referrer = %q", result.Referrer)
	}

	again := f.finish(t)
	if !again.Redirect || again.RedirectURL != "/forms/donate" {
		t.Errorf("second visit = %+v; want redirect to the form", again)
	}
}

func TestFinishWithoutMarkerRedirects(t *testing.T) {
	f := newCompletionFixture(t, nil)
	ctx := context.Background()

	result := f.finish(t)
	if !result.Redirect || result.RedirectURL != f.form.Link("") {
		t.Errorf("result = %+v", result)
	}

	f.rc.Session.Set(ctx, SessionKeySecurityID, "real")
	f.rc.Session.Set(ctx, SessionKeyFormProcessed, "guess")
	f.rc.Session.Set(ctx, SessionKeyFormProcessedNum, 7)
	if result := f.finish(t); !result.Redirect {
		t.Error("a marker matching neither the token nor the number must redirect")
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("sent %d emails on a rejected visit", len(f.mailer.sent))
	}
}

func TestFinishPendingPaymentShowsForm(t *testing.T) {
	f := newCompletionFixture(t, func(form *models.PaymentForm) {
		form.DisableSecurityToken = true
		form.PaymentCurrency = "USD"
	})
	f.gateway.purchase = &GatewayResponse{Outcome: OutcomeRedirect, RedirectURL: "https://gateway.test"}

	if _, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"12.5"}}, nil); err != nil {
		t.Fatal(err)
	}

	result := f.finish(t)
	if result.Redirect {
		t.Fatal("md5 marker should be accepted")
	}
	if !result.ShowForm {
		t.Error("form should be shown again for a pending payment")
	}
	if result.AmountNice != "$12.50" {
		t.Errorf("AmountNice = %q", result.AmountNice)
	}
}

func TestFinishWithoutSubmission(t *testing.T) {
	f := newCompletionFixture(t, func(form *models.PaymentForm) {
		form.DisableSaveSubmissions = true
	})
	f.submit(t, url.Values{"Name": {"Jane"}, "Amount": {"25"}}, nil)

	result := f.finish(t)
	if result.Redirect || result.Submission != nil {
		t.Fatalf("result = %+v", result)
	}
	if result.AmountNice != "$0" || !strings.Contains(result.OnSuccessMessage, "$0") {
		t.Errorf("AmountNice = %q, message = %q", result.AmountNice, result.OnSuccessMessage)
	}
}

func TestFinishSendsMatchingRecipients(t *testing.T) {
	f := newCompletionFixture(t, nil)
	recipients := []models.EmailRecipient{
		{FormID: f.form.ID, EmailAddress: "all@example.com", EmailSubject: "Any", EmailBody: "<p>Hi</p>"},
		{FormID: f.form.ID, EmailAddress: "paid@example.com", EmailSubject: "Paid", SendForStatuses: []string{"Captured"}},
		{FormID: f.form.ID, EmailAddress: "failed@example.com", EmailSubject: "Failed", SendForStatuses: []string{"Failed"}},
	}
	if err := f.db.Create(&recipients).Error; err != nil {
		t.Fatal(err)
	}

	small := fileHeader(t, "Receipt", "receipt.txt", []byte("receipt"))
	f.submit(t, url.Values{"Name": {"Jane"}, "Amount": {"25"}}, map[string][]*multipart.FileHeader{"Receipt": {small}})
	f.finish(t)

	if len(f.mailer.sent) != 2 {
		t.Fatalf("sent %d emails; want 2", len(f.mailer.sent))
	}
	to := map[string]bool{}
	for _, email := range f.mailer.sent {
		to[email.To] = true
		if len(email.Attachments) != 1 || string(email.Attachments[0].Content) != "receipt" {
			t.Errorf("attachments for %s = %+v", email.To, email.Attachments)
		}
		if !strings.Contains(email.Body, "TXN-1") {
			t.Errorf("receipt number missing from %s body", email.To)
		}
	}
	if !to["all@example.com"] || !to["paid@example.com"] {
		t.Errorf("recipients = %v", to)
	}
}

func TestFinishPropagatesMailError(t *testing.T) {
	f := newCompletionFixture(t, nil)
	f.db.Create(&models.EmailRecipient{FormID: f.form.ID, EmailAddress: "all@example.com"})
	f.mailer.err = errors.New("smtp down")
	f.submit(t, url.Values{"Name": {"Jane"}, "Amount": {"25"}}, nil)

	var form models.PaymentForm
	f.db.Preload("Fields").Preload("EmailRecipients").First(&form, f.form.ID)
	if _, err := f.completion.Finish(context.Background(), &form, f.rc, ""); err == nil {
		t.Error("expected the mail error to propagate")
	}
}

func TestFinishCarriesEmailDataHookOutput(t *testing.T) {
	var f *completionFixture
	var seenExtra []interface{}
	hooks := &Hooks{
		EmailData: []func(context.Context, *EmailData, *[]models.File){
			func(ctx context.Context, d *EmailData, attachments *[]models.File) {
				d.Extra = map[string]interface{}{"campaign": "spring"}
				terms := models.File{Name: "terms.txt", Filename: "docs/terms.txt", ContentType: "text/plain", Size: 5}
				if err := f.db.Create(&terms).Error; err != nil {
					t.Fatal(err)
				}
				*attachments = append(*attachments, terms)
			},
		},
		EmailAssembled: []func(context.Context, *Email, *models.EmailRecipient, *EmailData){
			func(ctx context.Context, e *Email, r *models.EmailRecipient, d *EmailData) {
				seenExtra = append(seenExtra, d.Extra["campaign"])
			},
		},
	}
	f = newHookedCompletionFixture(t, nil, hooks)
	f.store.files["docs/terms.txt"] = []byte("terms")
	f.db.Create(&models.EmailRecipient{FormID: f.form.ID, EmailAddress: "all@example.com"})

	f.submit(t, url.Values{"Name": {"Jane"}, "Amount": {"25"}}, nil)
	f.finish(t)

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails; want 1", len(f.mailer.sent))
	}
	got := f.mailer.sent[0].Attachments
	if len(got) != 1 || got[0].Filename != "terms.txt" || string(got[0].Content) != "terms" {
		t.Errorf("attachments = %+v", got)
	}
	if len(seenExtra) != 1 || seenExtra[0] != "spring" {
		t.Errorf("extra seen by dispatcher = %v", seenExtra)
	}

	var pending PendingNotification
	if found, _ := f.rc.Session.Get(context.Background(), NotificationKey(f.form.ID), &pending); found {
		t.Error("pending notification should be cleared after the finished page")
	}
}
