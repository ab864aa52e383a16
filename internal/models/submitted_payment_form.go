package models

import (
	"time"

	"gorm.io/gorm"
)

// SubmittedPaymentForm holds one submission attempt with a link to its payment
type SubmittedPaymentForm struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ParentID      uint  `gorm:"index" json:"parent_id"`
	SubmittedByID uint  `gorm:"index" json:"submitted_by_id"` // 0 for anonymous visitors
	PaymentID     *uint `gorm:"index" json:"payment_id"`

	// Relationships
	Parent  PaymentForm          `gorm:"foreignKey:ParentID" json:"-"`
	Payment *Payment             `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
	Values  []SubmittedFormField `gorm:"foreignKey:ParentID" json:"values,omitempty"`
}

// SubmittedFormField records the value of one form field for a submission
type SubmittedFormField struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ParentID       uint   `gorm:"index" json:"parent_id"`
	Name           string `gorm:"type:varchar(255)" json:"name"`
	Title          string `gorm:"type:varchar(255)" json:"title"`
	Value          string `gorm:"type:text" json:"value"`
	UploadedFileID *uint  `json:"uploaded_file_id"`

	UploadedFile *File `gorm:"foreignKey:UploadedFileID" json:"uploaded_file,omitempty"`
}

// IsTextual is false for values backed by an uploaded file
func (f SubmittedFormField) IsTextual() bool {
	return f.UploadedFileID == nil
}

// File is an uploaded asset
type File struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name         string `gorm:"type:varchar(255)" json:"name"`
	Filename     string `gorm:"type:varchar(500)" json:"filename"` // storage path
	Folder       string `gorm:"type:varchar(255)" json:"folder"`
	Size         int64  `json:"size"`
	ContentType  string `gorm:"type:varchar(100)" json:"content_type"`
	ShowInSearch bool   `gorm:"default:false" json:"show_in_search"`
}
