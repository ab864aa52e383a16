package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPaymentCurrency   = "AUD"
	DefaultOnCompleteMessage = "<p>Thank you. Your payment of [amount] has been processed.</p>"
	DefaultOnErrorMessage    = "<p>Sorry, your payment could not be processed. Your credit card has not been charged. Please try again.</p>"
)

// PaymentFieldGroup names a bundle of gateway-specific input fields
type PaymentFieldGroup string

const (
	PaymentFieldGroupCard     PaymentFieldGroup = "Card"
	PaymentFieldGroupBilling  PaymentFieldGroup = "Billing"
	PaymentFieldGroupShipping PaymentFieldGroup = "Shipping"
	PaymentFieldGroupCompany  PaymentFieldGroup = "Company"
	PaymentFieldGroupEmail    PaymentFieldGroup = "Email"
)

// AllPaymentFieldGroups lists the groups in render order
var AllPaymentFieldGroups = []PaymentFieldGroup{
	PaymentFieldGroupCard,
	PaymentFieldGroupBilling,
	PaymentFieldGroupShipping,
	PaymentFieldGroupCompany,
	PaymentFieldGroupEmail,
}

var ErrAmountFieldNotInForm = errors.New("payment amount field does not belong to this form")

// PaymentForm is a user defined form page that accepts payments
type PaymentForm struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title            string `gorm:"type:varchar(255)" json:"title"`
	URLSegment       string `gorm:"type:varchar(255);uniqueIndex" json:"url_segment"`
	Content          string `gorm:"type:text" json:"content"`
	SubmitButtonText string `gorm:"type:varchar(100)" json:"submit_button_text"`

	PaymentGateway         string `gorm:"type:varchar(100)" json:"payment_gateway"`
	PaymentCurrency        string `gorm:"type:varchar(3);default:'AUD'" json:"payment_currency"`
	PaymentFieldsCard      bool   `json:"payment_fields_card"`
	PaymentFieldsBilling   bool   `json:"payment_fields_billing"`
	PaymentFieldsShipping  bool   `json:"payment_fields_shipping"`
	PaymentFieldsCompany   bool   `json:"payment_fields_company"`
	PaymentFieldsEmail     bool   `json:"payment_fields_email"`
	PaymentAmountFieldID   *uint  `json:"payment_amount_field_id"`
	OnCompleteMessage      string `gorm:"type:text" json:"on_complete_message"`
	OnErrorMessage         string `gorm:"type:text" json:"on_error_message"`
	DisableSaveSubmissions bool   `json:"disable_save_submissions"`
	DisableSecurityToken   bool   `json:"disable_security_token"`

	// Relationships
	Fields          []FormField      `gorm:"foreignKey:ParentID" json:"fields,omitempty"`
	EmailRecipients []EmailRecipient `gorm:"foreignKey:FormID" json:"email_recipients,omitempty"`
}

// BeforeCreate fills in the page defaults
func (f *PaymentForm) BeforeCreate(tx *gorm.DB) error {
	if f.PaymentCurrency == "" {
		f.PaymentCurrency = DefaultPaymentCurrency
	}
	if f.OnCompleteMessage == "" {
		f.OnCompleteMessage = DefaultOnCompleteMessage
	}
	if f.OnErrorMessage == "" {
		f.OnErrorMessage = DefaultOnErrorMessage
	}
	return nil
}

// BeforeSave rejects an amount field taken from another form
func (f *PaymentForm) BeforeSave(tx *gorm.DB) error {
	if f.PaymentAmountFieldID == nil || f.ID == 0 {
		return nil
	}
	var count int64
	if err := tx.Session(&gorm.Session{NewDB: true}).Model(&FormField{}).
		Where("id = ? AND parent_id = ?", *f.PaymentAmountFieldID, f.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrAmountFieldNotInForm
	}
	return nil
}

// FormName is the name the rendered form is known by in the session
func (f *PaymentForm) FormName() string {
	return fmt.Sprintf("UserForm_Form_%d", f.ID)
}

// Link returns the public path of the form page, optionally for an action
func (f *PaymentForm) Link(action string) string {
	link := "/forms/" + f.URLSegment
	if action != "" {
		link += "/" + action
	}
	return link
}

// PaymentFieldGroups returns the enabled payment field groups
func (f *PaymentForm) PaymentFieldGroups() []PaymentFieldGroup {
	enabled := map[PaymentFieldGroup]bool{
		PaymentFieldGroupCard:     f.PaymentFieldsCard,
		PaymentFieldGroupBilling:  f.PaymentFieldsBilling,
		PaymentFieldGroupShipping: f.PaymentFieldsShipping,
		PaymentFieldGroupCompany:  f.PaymentFieldsCompany,
		PaymentFieldGroupEmail:    f.PaymentFieldsEmail,
	}

	var groups []PaymentFieldGroup
	for _, group := range AllPaymentFieldGroups {
		if enabled[group] {
			groups = append(groups, group)
		}
	}
	return groups
}

// AmountField finds the field that supplies the payment amount.
// Fields must be preloaded.
func (f *PaymentForm) AmountField() (*FormField, error) {
	if f.PaymentAmountFieldID == nil {
		return nil, fmt.Errorf("form %d has no payment amount field", f.ID)
	}
	for i := range f.Fields {
		if f.Fields[i].ID == *f.PaymentAmountFieldID {
			return &f.Fields[i], nil
		}
	}
	return nil, ErrAmountFieldNotInForm
}

// FieldByID looks up a preloaded field
func (f *PaymentForm) FieldByID(id uint) *FormField {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return &f.Fields[i]
		}
	}
	return nil
}
