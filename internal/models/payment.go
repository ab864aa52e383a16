package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentStatusCreated         PaymentStatus = "Created"
	PaymentStatusPendingPurchase PaymentStatus = "PendingPurchase"
	PaymentStatusCaptured        PaymentStatus = "Captured"
	PaymentStatusFailed          PaymentStatus = "Failed"
	PaymentStatusVoid            PaymentStatus = "Void"
	PaymentStatusRefunded        PaymentStatus = "Refunded"
)

// IsFinal reports whether the gateway will no longer change the status
func (s PaymentStatus) IsFinal() bool {
	switch s {
	case PaymentStatusCaptured, PaymentStatusVoid, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment is a gateway agnostic payment record
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Identifier           string          `gorm:"type:varchar(64);uniqueIndex" json:"identifier"`
	Gateway              string          `gorm:"type:varchar(100)" json:"gateway"`
	Amount               decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency             string          `gorm:"type:varchar(3)" json:"currency"`
	Status               PaymentStatus   `gorm:"type:varchar(30);index;default:'Created'" json:"status"`
	SuccessURL           string          `gorm:"type:text" json:"success_url"`
	FailureURL           string          `gorm:"type:text" json:"failure_url"`
	TransactionReference string          `gorm:"type:varchar(255)" json:"transaction_reference"`

	Messages []GatewayMessage `gorm:"foreignKey:PaymentID" json:"messages,omitempty"`
}

// AmountNice formats the amount for visitors, e.g. "$25" or "$25.50"
func (p Payment) AmountNice() string {
	return FormatAmount(p.Amount, p.Currency)
}

// GatewayMessageType classifies a recorded gateway exchange
type GatewayMessageType string

const (
	GatewayMessagePurchaseRequest          GatewayMessageType = "PurchaseRequest"
	GatewayMessagePurchaseRedirectResponse GatewayMessageType = "PurchaseRedirectResponse"
	GatewayMessagePurchasedResponse        GatewayMessageType = "PurchasedResponse"
	GatewayMessagePurchaseError            GatewayMessageType = "PurchaseError"
	GatewayMessageCompletePurchaseRequest  GatewayMessageType = "CompletePurchaseRequest"
	GatewayMessageCompletePurchaseError    GatewayMessageType = "CompletePurchaseError"
	GatewayMessageNotificationSuccessful   GatewayMessageType = "NotificationSuccessful"
	GatewayMessageNotificationPending      GatewayMessageType = "NotificationPending"
	GatewayMessageNotificationError        GatewayMessageType = "NotificationError"
)

// GatewayMessage stores a request to or response from a payment gateway
type GatewayMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaymentID uint               `gorm:"index" json:"payment_id"`
	Gateway   string             `gorm:"type:varchar(100)" json:"gateway"`
	Type      GatewayMessageType `gorm:"type:varchar(50);index" json:"type"`
	Reference string             `gorm:"type:varchar(255)" json:"reference"`
	Code      string             `gorm:"type:varchar(50)" json:"code"`
	Message   string             `gorm:"type:text" json:"message"`
	Raw       datatypes.JSONMap  `gorm:"type:jsonb" json:"raw,omitempty"`
}
