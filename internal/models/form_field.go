package models

import (
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// FieldKind tags the variant of an editable form field
type FieldKind string

const (
	FieldKindText          FieldKind = "text"
	FieldKindEmail         FieldKind = "email"
	FieldKindNumeric       FieldKind = "numeric"
	FieldKindTextArea      FieldKind = "textarea"
	FieldKindDropdown      FieldKind = "dropdown"
	FieldKindRadio         FieldKind = "radio"
	FieldKindCheckbox      FieldKind = "checkbox"
	FieldKindCheckboxGroup FieldKind = "checkboxgroup"
	FieldKindFile          FieldKind = "file"
	FieldKindHidden        FieldKind = "hidden"
)

// FormField is an administrator defined input on a payment form
type FormField struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ParentID           uint      `gorm:"index" json:"parent_id"`
	Name               string    `gorm:"type:varchar(255)" json:"name"`
	Title              string    `gorm:"type:varchar(255)" json:"title"`
	Kind               FieldKind `gorm:"type:varchar(30);default:'text'" json:"kind"`
	Required           bool      `json:"required"`
	CustomErrorMessage string    `gorm:"type:varchar(255)" json:"custom_error_message"`
	Default            string    `gorm:"type:varchar(255)" json:"default"`
	Options            []string  `gorm:"serializer:json" json:"options"`
	FolderName         string    `gorm:"type:varchar(255)" json:"folder_name"`
	ShowInReports      bool      `json:"show_in_reports"`
	Sort               int       `json:"sort"`
}

// IsUpload reports whether the field accepts a file
func (f FormField) IsUpload() bool {
	return f.Kind == FieldKindFile
}

// HasValueAccessor reports whether the field derives its value from the
// submission instead of a direct lookup
func (f FormField) HasValueAccessor() bool {
	switch f.Kind {
	case FieldKindCheckbox, FieldKindCheckboxGroup:
		return true
	}
	return false
}

// ValueFromData derives the recorded value for accessor-backed kinds
func (f FormField) ValueFromData(data url.Values) string {
	switch f.Kind {
	case FieldKindCheckbox:
		if data.Get(f.Name) != "" {
			return "Yes"
		}
		return "No"
	case FieldKindCheckboxGroup:
		var selected []string
		for _, v := range data[f.Name] {
			if v != "" {
				selected = append(selected, v)
			}
		}
		return strings.Join(selected, ", ")
	}
	return data.Get(f.Name)
}

// ErrorMessage is shown when a required field is left empty
func (f FormField) ErrorMessage() string {
	if f.CustomErrorMessage != "" {
		return f.CustomErrorMessage
	}
	title := f.Title
	if title == "" {
		title = f.Name
	}
	return title + " is required"
}
