package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"userform_payments/internal/models"
)

const GatewayMidtrans = "Midtrans"

// MidtransGateway sends visitors to the Snap payment page and
// settles payments through status checks and HTTP notifications.
type MidtransGateway struct {
	SnapClient snap.Client
	CoreClient coreapi.Client
	serverKey  string
}

func NewMidtransGateway(serverKey, clientKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	// Set Default Options
	midtrans.ServerKey = serverKey
	midtrans.ClientKey = clientKey
	midtrans.Environment = env

	return &MidtransGateway{
		SnapClient: s,
		CoreClient: c,
		serverKey:  serverKey,
	}
}

func (g *MidtransGateway) Name() string { return GatewayMidtrans }

func (g *MidtransGateway) Offsite() bool { return true }

// Purchase creates a Snap transaction keyed by the payment identifier
func (g *MidtransGateway) Purchase(ctx context.Context, req PurchaseRequest) (*GatewayResponse, error) {
	payment := req.Payment
	amount := models.ToMinorUnits(payment.Amount, payment.Currency)

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  payment.Identifier,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Data.Get("name"),
			Email: req.Data.Get("email"),
			Phone: req.Data.Get("phone"),
		},
		Callbacks: &snap.Callbacks{
			Finish: req.ReturnURL,
		},
	}

	resp, merr := g.SnapClient.CreateTransaction(snapReq)
	if merr != nil {
		return nil, fmt.Errorf("midtrans create transaction error: %v", merr.Message)
	}

	return &GatewayResponse{
		Outcome:     OutcomeRedirect,
		RedirectURL: resp.RedirectURL,
		Reference:   resp.Token,
		Raw: map[string]interface{}{
			"token":        resp.Token,
			"redirect_url": resp.RedirectURL,
		},
	}, nil
}

// CompletePurchase asks Midtrans for the current transaction status
func (g *MidtransGateway) CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*GatewayResponse, error) {
	status, merr := g.CoreClient.CheckTransaction(payment.Identifier)
	if merr != nil {
		return nil, fmt.Errorf("midtrans check transaction error: %v", merr.Message)
	}

	return &GatewayResponse{
		Outcome:   mapMidtransStatus(status.TransactionStatus, status.FraudStatus),
		Reference: status.TransactionID,
		Code:      status.StatusCode,
		Message:   status.TransactionStatus,
		Raw: map[string]interface{}{
			"order_id":           status.OrderID,
			"transaction_id":     status.TransactionID,
			"transaction_status": status.TransactionStatus,
			"fraud_status":       status.FraudStatus,
			"gross_amount":       status.GrossAmount,
		},
	}, nil
}

// HandleNotification verifies and decodes a Midtrans HTTP notification
func (g *MidtransGateway) HandleNotification(ctx context.Context, body []byte) (string, *GatewayResponse, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, fmt.Errorf("invalid midtrans notification: %w", err)
	}

	orderID := stringValue(payload, "order_id")
	statusCode := stringValue(payload, "status_code")
	grossAmount := stringValue(payload, "gross_amount")
	if orderID == "" {
		return "", nil, fmt.Errorf("midtrans notification without order_id")
	}
	if !g.VerifySignature(orderID, statusCode, grossAmount, stringValue(payload, "signature_key")) {
		return "", nil, fmt.Errorf("midtrans notification signature mismatch for %s", orderID)
	}

	transactionStatus := stringValue(payload, "transaction_status")
	return orderID, &GatewayResponse{
		Outcome:   mapMidtransStatus(transactionStatus, stringValue(payload, "fraud_status")),
		Reference: stringValue(payload, "transaction_id"),
		Code:      statusCode,
		Message:   transactionStatus,
		Raw:       payload,
	}, nil
}

// VerifySignature checks SHA512(order_id + status_code + gross_amount + server key)
func (g *MidtransGateway) VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + g.serverKey))
	return signatureKey != "" && hex.EncodeToString(sum[:]) == signatureKey
}

func mapMidtransStatus(transactionStatus, fraudStatus string) GatewayOutcome {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return OutcomePending
		}
		return OutcomeCaptured
	case "settlement":
		return OutcomeCaptured
	case "deny", "expire", "cancel", "failure":
		return OutcomeDeclined
	default:
		return OutcomePending
	}
}

func stringValue(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
