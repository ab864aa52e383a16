package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailRecipient is an administrator configured notification target
type EmailRecipient struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FormID       uint   `gorm:"index" json:"form_id"`
	EmailAddress string `gorm:"type:varchar(255)" json:"email_address"`
	EmailSubject string `gorm:"type:varchar(255)" json:"email_subject"`
	EmailFrom    string `gorm:"type:varchar(255)" json:"email_from"`
	EmailReplyTo string `gorm:"type:varchar(255)" json:"email_reply_to"`
	EmailBody    string `gorm:"type:text" json:"email_body"`
	SendPlain    bool   `json:"send_plain"`
	HideFormData bool   `json:"hide_form_data"`

	SendEmailFromFieldID    *uint `json:"send_email_from_field_id"`
	SendEmailToFieldID      *uint `json:"send_email_to_field_id"`
	SendEmailSubjectFieldID *uint `json:"send_email_subject_field_id"`

	// Statuses that trigger this recipient, empty means every status
	SendForStatuses []string `gorm:"serializer:json" json:"send_for_statuses"`

	// Relationships
	SendEmailFromField    *FormField `gorm:"foreignKey:SendEmailFromFieldID" json:"send_email_from_field,omitempty"`
	SendEmailToField      *FormField `gorm:"foreignKey:SendEmailToFieldID" json:"send_email_to_field,omitempty"`
	SendEmailSubjectField *FormField `gorm:"foreignKey:SendEmailSubjectFieldID" json:"send_email_subject_field,omitempty"`
}

// SendForStatus reports whether a payment in the given status triggers this recipient
func (r EmailRecipient) SendForStatus(status PaymentStatus) bool {
	if len(r.SendForStatuses) == 0 {
		return true
	}
	for _, s := range r.SendForStatuses {
		if PaymentStatus(s) == status {
			return true
		}
	}
	return false
}
