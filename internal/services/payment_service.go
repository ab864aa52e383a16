package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

var (
	ErrUnknownGateway           = errors.New("unknown payment gateway")
	ErrNotificationsUnsupported = errors.New("gateway does not accept notifications")
)

type PaymentService struct {
	db       *gorm.DB
	gateways *GatewayRegistry
	appURL   string
}

func NewPaymentService(db *gorm.DB, gateways *GatewayRegistry, appURL string) *PaymentService {
	return &PaymentService{
		db:       db,
		gateways: gateways,
		appURL:   appURL,
	}
}

// Gateways exposes the registry the service dispatches to
func (s *PaymentService) Gateways() *GatewayRegistry {
	return s.gateways
}

// ServiceResponse tells the caller where the visitor goes after initiation
type ServiceResponse struct {
	Payment     *models.Payment
	RedirectURL string // off-site gateway page
	Body        string // gateway supplied page, served as is
	TargetURL   string // success or failure url on this site
	Error       bool
}

// IsOffsite reports whether the visitor has to continue on the gateway
func (r *ServiceResponse) IsOffsite() bool {
	return r.RedirectURL != "" || r.Body != ""
}

// RedirectOrRespond sends the visitor on: off-site to the gateway, or back
// to the success/failure url recorded on the payment.
func (r *ServiceResponse) RedirectOrRespond(w http.ResponseWriter, req *http.Request) error {
	switch {
	case r.RedirectURL != "":
		http.Redirect(w, req, r.RedirectURL, http.StatusFound)
	case r.Body != "":
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(r.Body))
		return err
	default:
		http.Redirect(w, req, r.TargetURL, http.StatusSeeOther)
	}
	return nil
}

// CreatePayment writes a new payment awaiting initiation
func (s *PaymentService) CreatePayment(ctx context.Context, gateway string, amount decimal.Decimal, currency, successURL, failureURL string) (*models.Payment, error) {
	if _, ok := s.gateways.Get(gateway); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, gateway)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	payment := &models.Payment{
		Identifier: uuid.NewString(),
		Gateway:    gateway,
		Amount:     amount,
		Currency:   currency,
		Status:     models.PaymentStatusCreated,
		SuccessURL: successURL,
		FailureURL: failureURL,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

// CompleteURL is the gateway return endpoint for a payment
func (s *PaymentService) CompleteURL(payment *models.Payment) string {
	return fmt.Sprintf("%s/payment/%s/complete", s.appURL, payment.Identifier)
}

// Initiate starts the purchase with the payment's gateway. A gateway failure
// marks the payment Failed and is returned as a *GatewayError.
func (s *PaymentService) Initiate(ctx context.Context, payment *models.Payment, data url.Values) (*ServiceResponse, error) {
	gw, ok := s.gateways.Get(payment.Gateway)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, payment.Gateway)
	}
	if payment.Status != models.PaymentStatusCreated {
		return nil, fmt.Errorf("payment %s cannot be initiated from status %s", payment.Identifier, payment.Status)
	}

	s.recordMessage(ctx, payment, models.GatewayMessagePurchaseRequest, &GatewayResponse{})
	payment.Status = models.PaymentStatusPendingPurchase
	if err := s.db.WithContext(ctx).Save(payment).Error; err != nil {
		return nil, err
	}

	resp, err := gw.Purchase(ctx, PurchaseRequest{
		Payment:   payment,
		ReturnURL: s.CompleteURL(payment),
		CancelURL: payment.FailureURL,
		Data:      data,
	})
	if err != nil {
		s.recordMessage(ctx, payment, models.GatewayMessagePurchaseError, &GatewayResponse{Message: err.Error()})
		payment.Status = models.PaymentStatusFailed
		if saveErr := s.db.WithContext(ctx).Save(payment).Error; saveErr != nil {
			log.Printf("Failed to mark payment %s failed: %v", payment.Identifier, saveErr)
		}
		return nil, &GatewayError{Gateway: gw.Name(), Message: err.Error()}
	}

	if resp.Reference != "" {
		payment.TransactionReference = resp.Reference
	}

	sr := &ServiceResponse{Payment: payment}
	switch resp.Outcome {
	case OutcomeRedirect:
		s.recordMessage(ctx, payment, models.GatewayMessagePurchaseRedirectResponse, resp)
		sr.RedirectURL = resp.RedirectURL
		sr.Body = resp.Body
	case OutcomeCaptured:
		payment.Status = models.PaymentStatusCaptured
		s.recordMessage(ctx, payment, models.GatewayMessagePurchasedResponse, resp)
		sr.TargetURL = payment.SuccessURL
	case OutcomeDeclined:
		payment.Status = models.PaymentStatusFailed
		s.recordMessage(ctx, payment, models.GatewayMessagePurchaseError, resp)
		sr.TargetURL = payment.FailureURL
		sr.Error = true
	default:
		sr.TargetURL = payment.SuccessURL
	}

	if err := s.db.WithContext(ctx).Save(payment).Error; err != nil {
		return nil, err
	}
	return sr, nil
}

// FindByIdentifier loads a payment by its public identifier
func (s *PaymentService) FindByIdentifier(ctx context.Context, identifier string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// Complete handles the visitor returning from an off-site gateway and
// returns the url to send them on to.
func (s *PaymentService) Complete(ctx context.Context, identifier string, params url.Values) (string, error) {
	payment, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}
	gw, ok := s.gateways.Get(payment.Gateway)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGateway, payment.Gateway)
	}

	if !payment.Status.IsFinal() {
		s.recordMessage(ctx, payment, models.GatewayMessageCompletePurchaseRequest, &GatewayResponse{})
		resp, err := gw.CompletePurchase(ctx, payment, params)
		if err != nil {
			log.Printf("Complete purchase for %s failed: %v", payment.Identifier, err)
			s.recordMessage(ctx, payment, models.GatewayMessageCompletePurchaseError, &GatewayResponse{Message: err.Error()})
			return payment.FailureURL, nil
		}
		if resp.Outcome == OutcomeDeclined {
			s.recordMessage(ctx, payment, models.GatewayMessageCompletePurchaseError, resp)
		}
		if err := s.applyOutcome(ctx, payment, resp); err != nil {
			return "", err
		}
	}

	if payment.Status == models.PaymentStatusFailed {
		return payment.FailureURL, nil
	}
	return payment.SuccessURL, nil
}

// ApplyNotification feeds an asynchronous gateway notification into the payment
func (s *PaymentService) ApplyNotification(ctx context.Context, gatewayName string, body []byte) error {
	gw, ok := s.gateways.Get(gatewayName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGateway, gatewayName)
	}
	nh, ok := gw.(NotificationHandler)
	if !ok {
		return ErrNotificationsUnsupported
	}

	identifier, resp, err := nh.HandleNotification(ctx, body)
	if err != nil {
		return err
	}
	if identifier == "" {
		return nil
	}

	payment, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if payment.Gateway != gw.Name() {
		return fmt.Errorf("payment %s does not belong to %s", identifier, gw.Name())
	}

	msgType := models.GatewayMessageNotificationPending
	switch resp.Outcome {
	case OutcomeCaptured:
		msgType = models.GatewayMessageNotificationSuccessful
	case OutcomeDeclined:
		msgType = models.GatewayMessageNotificationError
	}
	s.recordMessage(ctx, payment, msgType, resp)

	return s.applyOutcome(ctx, payment, resp)
}

// SyncPending re-checks payments that have been pending for longer than
// olderThan and returns how many changed status.
func (s *PaymentService) SyncPending(ctx context.Context, olderThan time.Duration) (int, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PaymentStatusPendingPurchase, time.Now().Add(-olderThan)).
		Find(&payments).Error
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range payments {
		payment := &payments[i]
		gw, ok := s.gateways.Get(payment.Gateway)
		if !ok {
			log.Printf("Skipping payment %s: %v %q", payment.Identifier, ErrUnknownGateway, payment.Gateway)
			continue
		}
		resp, err := gw.CompletePurchase(ctx, payment, nil)
		if err != nil {
			log.Printf("Status check for payment %s failed: %v", payment.Identifier, err)
			continue
		}
		before := payment.Status
		if err := s.applyOutcome(ctx, payment, resp); err != nil {
			return changed, err
		}
		if payment.Status != before {
			changed++
		}
	}
	return changed, nil
}

// VoidAbandoned voids payments that were created but never handed to a
// gateway within olderThan.
func (s *PaymentService) VoidAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusCreated, time.Now().Add(-olderThan)).
		Update("status", models.PaymentStatusVoid)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// ReceiptNumber is the gateway reference of the first successful purchase response
func (s *PaymentService) ReceiptNumber(ctx context.Context, paymentID uint) string {
	var msg models.GatewayMessage
	err := s.db.WithContext(ctx).
		Where("payment_id = ? AND type = ?", paymentID, models.GatewayMessagePurchasedResponse).
		Order("id asc").
		First(&msg).Error
	if err != nil {
		return ""
	}
	return msg.Reference
}

// applyOutcome moves a payment along. Final states are never left.
func (s *PaymentService) applyOutcome(ctx context.Context, payment *models.Payment, resp *GatewayResponse) error {
	if payment.Status.IsFinal() {
		return nil
	}

	switch resp.Outcome {
	case OutcomeCaptured:
		payment.Status = models.PaymentStatusCaptured
		s.recordMessage(ctx, payment, models.GatewayMessagePurchasedResponse, resp)
	case OutcomeDeclined:
		payment.Status = models.PaymentStatusFailed
	default:
		if payment.Status != models.PaymentStatusFailed {
			payment.Status = models.PaymentStatusPendingPurchase
		}
	}
	if resp.Reference != "" {
		payment.TransactionReference = resp.Reference
	}
	return s.db.WithContext(ctx).Save(payment).Error
}

func (s *PaymentService) recordMessage(ctx context.Context, payment *models.Payment, msgType models.GatewayMessageType, resp *GatewayResponse) {
	msg := models.GatewayMessage{
		PaymentID: payment.ID,
		Gateway:   payment.Gateway,
		Type:      msgType,
		Reference: resp.Reference,
		Code:      resp.Code,
		Message:   resp.Message,
		Raw:       datatypes.JSONMap(resp.Raw),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		log.Printf("Failed to record %s message for payment %s: %v", msgType, payment.Identifier, err)
	}
}
