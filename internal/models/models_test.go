package models

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"25.00", "AUD", "$25"},
		{"25.5", "AUD", "$25.50"},
		{"0", "", "$0"},
		{"1999.99", "USD", "$1999.99"},
		{"150000", "IDR", "Rp150000"},
		{"12.30", "EUR", "€12.30"},
		{"7.25", "chf", "CHF 7.25"},
	}
	for _, tt := range tests {
		got := FormatAmount(decimal.RequireFromString(tt.amount), tt.currency)
		if got != tt.want {
			t.Errorf("FormatAmount(%s, %s) = %q; want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"25.00", "AUD", 2500},
		{"10.005", "USD", 1001},
		{"150000", "IDR", 150000},
		{"500", "JPY", 500},
	}
	for _, tt := range tests {
		if got := ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency); got != tt.want {
			t.Errorf("ToMinorUnits(%s, %s) = %d; want %d", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestFormFieldValueFromData(t *testing.T) {
	data := url.Values{
		"Agree":  {"1"},
		"Colors": {"Red", "", "Blue"},
		"Name":   {"Jane"},
	}
	tests := []struct {
		field FormField
		want  string
	}{
		{FormField{Name: "Agree", Kind: FieldKindCheckbox}, "Yes"},
		{FormField{Name: "Missing", Kind: FieldKindCheckbox}, "No"},
		{FormField{Name: "Colors", Kind: FieldKindCheckboxGroup}, "Red, Blue"},
		{FormField{Name: "Name", Kind: FieldKindText}, "Jane"},
	}
	for _, tt := range tests {
		if got := tt.field.ValueFromData(data); got != tt.want {
			t.Errorf("%s ValueFromData = %q; want %q", tt.field.Name, got, tt.want)
		}
	}

	if (FormField{Kind: FieldKindText}).HasValueAccessor() {
		t.Error("text fields read the value directly")
	}
	if !(FormField{Kind: FieldKindFile}).IsUpload() {
		t.Error("file fields are uploads")
	}
}

func TestFormFieldErrorMessage(t *testing.T) {
	if got := (FormField{Name: "Name", Title: "Your name"}).ErrorMessage(); got != "Your name is required" {
		t.Errorf("default message = %q", got)
	}
	if got := (FormField{Name: "Name", CustomErrorMessage: "Tell us who you are"}).ErrorMessage(); got != "Tell us who you are" {
		t.Errorf("custom message = %q", got)
	}
}

func TestPaymentFormHelpers(t *testing.T) {
	form := &PaymentForm{
		ID:                   3,
		URLSegment:           "donate",
		PaymentFieldsCard:    true,
		PaymentFieldsCompany: true,
	}
	if form.FormName() != "UserForm_Form_3" {
		t.Errorf("FormName = %q", form.FormName())
	}
	if form.Link("") != "/forms/donate" || form.Link("finished") != "/forms/donate/finished" {
		t.Errorf("links = %q, %q", form.Link(""), form.Link("finished"))
	}
	groups := form.PaymentFieldGroups()
	if len(groups) != 2 || groups[0] != PaymentFieldGroupCard || groups[1] != PaymentFieldGroupCompany {
		t.Errorf("groups = %v", groups)
	}
	if _, err := form.AmountField(); err == nil {
		t.Error("expected an error without an amount field")
	}
}

func TestPaymentStatusIsFinal(t *testing.T) {
	final := map[PaymentStatus]bool{
		PaymentStatusCreated:         false,
		PaymentStatusPendingPurchase: false,
		PaymentStatusFailed:          false,
		PaymentStatusCaptured:        true,
		PaymentStatusVoid:            true,
		PaymentStatusRefunded:        true,
	}
	for status, want := range final {
		if status.IsFinal() != want {
			t.Errorf("%s.IsFinal() = %v", status, !want)
		}
	}
}

func TestEmailRecipientSendForStatus(t *testing.T) {
	if !(EmailRecipient{}).SendForStatus(PaymentStatusFailed) {
		t.Error("an empty status list matches every status")
	}
	r := EmailRecipient{SendForStatuses: []string{"Captured"}}
	if !r.SendForStatus(PaymentStatusCaptured) || r.SendForStatus(PaymentStatusFailed) {
		t.Error("status list not honoured")
	}
}

func newModelsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "models.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&PaymentForm{}, &FormField{}, &EmailRecipient{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestPaymentFormDefaultsAndAmountFieldGuard(t *testing.T) {
	db := newModelsDB(t)

	form := &PaymentForm{Title: "Donate", URLSegment: "donate", Fields: []FormField{{Name: "Amount", Kind: FieldKindNumeric}}}
	other := &PaymentForm{Title: "Other", URLSegment: "other", Fields: []FormField{{Name: "Amount", Kind: FieldKindNumeric}}}
	if err := db.Create(form).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(other).Error; err != nil {
		t.Fatal(err)
	}

	if form.PaymentCurrency != DefaultPaymentCurrency || form.OnCompleteMessage != DefaultOnCompleteMessage || form.OnErrorMessage != DefaultOnErrorMessage {
		t.Errorf("defaults not applied: %q %q %q", form.PaymentCurrency, form.OnCompleteMessage, form.OnErrorMessage)
	}

	foreign := other.Fields[0].ID
	form.PaymentAmountFieldID = &foreign
	if err := db.Omit("Fields").Save(form).Error; !errors.Is(err, ErrAmountFieldNotInForm) {
		t.Errorf("foreign amount field err = %v", err)
	}

	own := form.Fields[0].ID
	form.PaymentAmountFieldID = &own
	if err := db.Omit("Fields").Save(form).Error; err != nil {
		t.Fatalf("own amount field err = %v", err)
	}
	field, err := form.AmountField()
	if err != nil || field.ID != own {
		t.Errorf("AmountField = %+v, %v", field, err)
	}
}

func TestScheduledTaskNextDue(t *testing.T) {
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rule := "FREQ=HOURLY;INTERVAL=1"
	task := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &rule}

	next := task.NextDue(due.Add(90 * time.Minute))
	if want := due.Add(2 * time.Hour); !next.Equal(want) {
		t.Errorf("NextDue = %s; want %s", next, want)
	}

	oneTime := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeOneTime}
	if !oneTime.NextDue(due.Add(time.Hour)).Equal(due) {
		t.Error("one-time tasks keep their due date")
	}

	bad := "not a rule"
	broken := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &bad}
	if !broken.NextDue(due.Add(time.Hour)).Equal(due) {
		t.Error("unparsable rules keep the due date")
	}
}
