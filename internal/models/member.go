package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a signed-in visitor, resolved from a Firebase session
type Member struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	Name        string `gorm:"type:varchar(255)" json:"name"`
	Email       string `gorm:"type:varchar(255);index" json:"email"`
}
