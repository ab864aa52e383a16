package services

import (
	"context"
	"errors"
	"mime/multipart"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

type processorFixture struct {
	db        *gorm.DB
	gateway   *fakeGateway
	payments  *PaymentService
	store     *memoryFileStore
	processor *SubmissionProcessor
	form      *models.PaymentForm
	rc        RequestContext
}

func newProcessorFixture(t *testing.T, configure func(*models.PaymentForm), hooks *Hooks) *processorFixture {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{name: "PayPal", offsite: true}
	payments := NewPaymentService(db, NewGatewayRegistry(gw), "https://example.com")
	store := newMemoryFileStore()
	uploader := NewUploader(db, store, 2*1024*1024, []string{"pdf", "txt"})
	return &processorFixture{
		db:        db,
		gateway:   gw,
		payments:  payments,
		store:     store,
		processor: NewSubmissionProcessor(db, payments, uploader, hooks),
		form:      newTestForm(t, db, "PayPal", configure),
		rc:        newRequestContext(),
	}
}

func (f *processorFixture) process(data url.Values, files map[string][]*multipart.FileHeader) (*ProcessResult, error) {
	return f.processor.Process(context.Background(), ProcessInput{
		Form:         f.form,
		Data:         data,
		Files:        files,
		Request:      f.rc,
		FinishedLink: "https://example.com" + f.form.Link("finished"),
	})
}

func TestProcessCreatesSubmissionAndPayment(t *testing.T) {
	f := newProcessorFixture(t, nil, nil)
	data := url.Values{
		"Name":       {"Jane"},
		"Email":      {"jane@example.com"},
		"Amount":     {"25.00"},
		"SecurityID": {"tok"},
		"number":     {"4242424242424242"},
	}

	result, err := f.process(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Payment.Amount.Equal(decimal.RequireFromString("25")) || result.Payment.Currency != "AUD" {
		t.Errorf("payment = %s %s", result.Payment.Amount, result.Payment.Currency)
	}
	if result.Payment.Gateway != "PayPal" {
		t.Errorf("gateway = %s", result.Payment.Gateway)
	}
	if result.Payment.SuccessURL != "https://example.com/forms/donate/finished" {
		t.Errorf("success url = %s", result.Payment.SuccessURL)
	}

	var submission models.SubmittedPaymentForm
	if err := f.db.Preload("Payment").Preload("Values").First(&submission, result.Submission.ID).Error; err != nil {
		t.Fatal(err)
	}
	if submission.Payment == nil || submission.Payment.Identifier != result.Payment.Identifier {
		t.Fatalf("submission payment = %+v", submission.Payment)
	}
	if len(submission.Values) != 4 {
		t.Errorf("got %d submitted fields; want 4", len(submission.Values))
	}
	if submission.SubmittedByID != 0 {
		t.Errorf("anonymous submission has SubmittedByID %d", submission.SubmittedByID)
	}

	ctx := context.Background()
	var processed string
	if ok, _ := f.rc.Session.Get(ctx, SessionKeyFormProcessed, &processed); !ok || processed != "tok" {
		t.Errorf("FormProcessed = %q", processed)
	}
	var submissionID uint
	if ok, _ := f.rc.Session.Get(ctx, SubmissionKey(f.form.ID), &submissionID); !ok || submissionID != submission.ID {
		t.Errorf("submission key = %d", submissionID)
	}
	var stash url.Values
	if ok, _ := f.rc.Session.Get(ctx, FormDataKey(f.form.FormName()), &stash); ok {
		t.Errorf("audit trail should be cleared, got %v", stash)
	}
}

func TestProcessWithoutSavingSubmissions(t *testing.T) {
	f := newProcessorFixture(t, func(form *models.PaymentForm) {
		form.DisableSaveSubmissions = true
	}, nil)

	result, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}, "SecurityID": {"tok"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Response == nil || result.Payment.ID == 0 {
		t.Fatalf("result = %+v", result)
	}

	var submissions, values int64
	f.db.Model(&models.SubmittedPaymentForm{}).Count(&submissions)
	f.db.Model(&models.SubmittedFormField{}).Count(&values)
	if submissions != 0 || values != 0 {
		t.Errorf("persisted %d submissions and %d values; want none", submissions, values)
	}
	if len(f.gateway.requests) != 1 {
		t.Errorf("gateway called %d times", len(f.gateway.requests))
	}
	var id uint
	if ok, _ := f.rc.Session.Get(context.Background(), SubmissionKey(f.form.ID), &id); ok {
		t.Error("submission key must not be set when saving is disabled")
	}
}

func TestProcessGatewayFailureLeavesSubmissionUnlinked(t *testing.T) {
	f := newProcessorFixture(t, nil, nil)
	f.gateway.purchaseErr = errors.New("card processor offline")

	_, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}, "SecurityID": {"tok"}}, nil)
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v; want *GatewayError", err)
	}
	if gerr.Message != "card processor offline" {
		t.Errorf("message = %q", gerr.Message)
	}

	var submission models.SubmittedPaymentForm
	if err := f.db.First(&submission).Error; err != nil {
		t.Fatal(err)
	}
	if submission.PaymentID != nil {
		t.Errorf("submission linked to payment %d", *submission.PaymentID)
	}

	var stash url.Values
	if ok, _ := f.rc.Session.Get(context.Background(), FormDataKey(f.form.FormName()), &stash); !ok || stash.Get("Name") != "Jane" {
		t.Errorf("audit trail = %v; want kept for the retry", stash)
	}
}

func TestProcessUploads(t *testing.T) {
	f := newProcessorFixture(t, nil, nil)
	files := map[string][]*multipart.FileHeader{
		"Receipt": {fileHeader(t, "Receipt", "receipt.pdf", []byte("%PDF-1.4"))},
	}

	result, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}, "SecurityID": {"tok"}}, files)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Attachments) != 1 || result.Attachments[0].Name != "receipt.pdf" {
		t.Fatalf("attachments = %+v", result.Attachments)
	}

	var value models.SubmittedFormField
	if err := f.db.Preload("UploadedFile").Where("name = ?", "Receipt").First(&value).Error; err != nil {
		t.Fatal(err)
	}
	if value.UploadedFile == nil || value.UploadedFile.Folder != "receipts" {
		t.Errorf("uploaded file = %+v", value.UploadedFile)
	}
	if _, ok := f.store.files[value.UploadedFile.Filename]; !ok {
		t.Errorf("file %s not stored", value.UploadedFile.Filename)
	}
}

func TestProcessRejectsInvalidUpload(t *testing.T) {
	f := newProcessorFixture(t, nil, nil)
	files := map[string][]*multipart.FileHeader{
		"Receipt": {fileHeader(t, "Receipt", "virus.exe", []byte("MZ"))},
	}

	_, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}, "SecurityID": {"tok"}}, files)
	var verr *UploadValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v; want *UploadValidationError", err)
	}
	if verr.Field != "Receipt" {
		t.Errorf("field = %q", verr.Field)
	}

	var errs map[string]string
	if ok, _ := f.rc.Session.Get(context.Background(), FormErrorsKey(f.form.FormName()), &errs); !ok || errs["Receipt"] == "" {
		t.Errorf("session errors = %v", errs)
	}
	if len(f.gateway.requests) != 0 {
		t.Error("gateway must not be called after an upload failure")
	}
}

func TestProcessWithSecurityTokenDisabled(t *testing.T) {
	f := newProcessorFixture(t, func(form *models.PaymentForm) {
		form.DisableSecurityToken = true
	}, nil)

	if _, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}}, nil); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var num int
	var processed string
	if ok, _ := f.rc.Session.Get(ctx, SessionKeyFormProcessedNum, &num); !ok || num < 1 || num > 1000 {
		t.Fatalf("FormProcessedNum = %d", num)
	}
	f.rc.Session.Get(ctx, SessionKeyFormProcessed, &processed)
	if processed != processedHash(num) {
		t.Errorf("FormProcessed = %q; want md5 of %d", processed, num)
	}
}

func TestProcessReferrerAndHooks(t *testing.T) {
	var order []string
	hooks := &Hooks{
		FieldPopulated: []func(context.Context, *models.SubmittedFormField, *models.FormField){
			func(ctx context.Context, s *models.SubmittedFormField, field *models.FormField) {
				if field.Name == "Name" {
					s.Value = "Dr " + s.Value
				}
			},
		},
		EmailData: []func(context.Context, *EmailData, *[]models.File){
			func(ctx context.Context, d *EmailData, _ *[]models.File) {
				order = append(order, "email")
				d.Extra = map[string]interface{}{"campaign": "spring"}
			},
		},
		AfterProcess: []func(context.Context, *models.SubmittedPaymentForm){
			func(ctx context.Context, s *models.SubmittedPaymentForm) {
				order = append(order, "after")
				if s.PaymentID == nil {
					t.Error("payment should be linked before AfterProcess")
				}
			},
		},
	}
	f := newProcessorFixture(t, nil, hooks)

	member := &models.Member{FirebaseUID: "uid-1", Email: "m@example.com"}
	f.db.Create(member)
	f.rc.CurrentUser = member

	result, err := f.process(url.Values{"Name": {"Jane"}, "Amount": {"10"}, "SecurityID": {"tok"}, "Referrer": {"/events/gala"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if want := "https://example.com/forms/donate/finished?referrer=%2Fevents%2Fgala"; result.Payment.SuccessURL != want {
		t.Errorf("success url = %s; want %s", result.Payment.SuccessURL, want)
	}
	if result.Submission.SubmittedByID != member.ID {
		t.Errorf("SubmittedByID = %d", result.Submission.SubmittedByID)
	}
	if result.EmailData.Extra["campaign"] != "spring" {
		t.Errorf("extra = %v", result.EmailData.Extra)
	}
	if len(order) != 2 || order[0] != "email" || order[1] != "after" {
		t.Errorf("hook order = %v", order)
	}

	var value models.SubmittedFormField
	f.db.Where("name = ?", "Name").First(&value)
	if value.Value != "Dr Jane" {
		t.Errorf("stored name = %q", value.Value)
	}
}
