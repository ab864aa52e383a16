package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"userform_payments/internal/models"
)

const GatewayOmise = "Omise"

// OmiseGateway charges cards on-site, either from an Omise.js token
// posted with the form or by tokenising the card fields server side.
type OmiseGateway struct {
	client *omise.Client
}

func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create omise client: %w", err)
	}
	return &OmiseGateway{client: client}, nil
}

func (g *OmiseGateway) Name() string { return GatewayOmise }

func (g *OmiseGateway) Offsite() bool { return false }

func (g *OmiseGateway) Purchase(ctx context.Context, req PurchaseRequest) (*GatewayResponse, error) {
	payment := req.Payment

	card := req.Data.Get("omiseToken")
	if card == "" {
		token, err := g.createToken(req.Data)
		if err != nil {
			return nil, err
		}
		card = token
	}

	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.CreateCharge{
		Amount:      models.ToMinorUnits(payment.Amount, payment.Currency),
		Currency:    strings.ToLower(payment.Currency),
		Card:        card,
		ReturnURI:   req.ReturnURL,
		Description: fmt.Sprintf("Payment %s", payment.Identifier),
		Metadata: map[string]interface{}{
			"payment_identifier": payment.Identifier,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to create charge: %v", err)
	}

	return chargeResponse(ch), nil
}

func (g *OmiseGateway) createToken(data url.Values) (string, error) {
	expMonth, err := strconv.Atoi(strings.TrimSpace(data.Get("expiryMonth")))
	if err != nil || expMonth < 1 || expMonth > 12 {
		return "", fmt.Errorf("invalid expiry month: %q", data.Get("expiryMonth"))
	}
	expYear, err := strconv.Atoi(strings.TrimSpace(data.Get("expiryYear")))
	if err != nil {
		return "", fmt.Errorf("invalid expiry year: %q", data.Get("expiryYear"))
	}
	if expYear < 100 {
		expYear += 2000
	}

	token := &omise.Token{}
	if err := g.client.Do(token, &operations.CreateToken{
		Name:            data.Get("name"),
		Number:          strings.ReplaceAll(data.Get("number"), " ", ""),
		ExpirationMonth: time.Month(expMonth),
		ExpirationYear:  expYear,
		SecurityCode:    data.Get("cvv"),
	}); err != nil {
		return "", fmt.Errorf("failed to create token: %v", err)
	}
	return token.ID, nil
}

// CompletePurchase re-reads the charge after a 3-D Secure return
func (g *OmiseGateway) CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*GatewayResponse, error) {
	if payment.TransactionReference == "" {
		return nil, fmt.Errorf("payment %s has no omise charge", payment.Identifier)
	}
	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: payment.TransactionReference}); err != nil {
		return nil, fmt.Errorf("retrieve charge %s failed: %v", payment.TransactionReference, err)
	}
	return chargeResponse(ch), nil
}

// HandleNotification verifies a webhook by retrieving the event back from Omise.
// Events that are not about charges are ignored with an empty identifier.
func (g *OmiseGateway) HandleNotification(ctx context.Context, body []byte) (string, *GatewayResponse, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ID == "" {
		return "", nil, fmt.Errorf("invalid payload: missing event id")
	}

	ev := &omise.Event{}
	if err := g.client.Do(ev, &operations.RetrieveEvent{EventID: envelope.ID}); err != nil {
		return "", nil, fmt.Errorf("event verification failed for id=%s: %v", envelope.ID, err)
	}

	switch ev.Key {
	case "charge.complete", "charge.capture", "charge.failed", "charge.expired", "charge.reversed":
	default:
		return "", nil, nil
	}

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return "", nil, err
	}
	var data struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &data); err != nil || data.Object != "charge" || data.ID == "" {
		return "", nil, nil
	}

	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: data.ID}); err != nil {
		return "", nil, fmt.Errorf("retrieve charge %s failed: %v", data.ID, err)
	}

	identifier, _ := ch.Metadata["payment_identifier"].(string)
	return identifier, chargeResponse(ch), nil
}

func chargeResponse(ch *omise.Charge) *GatewayResponse {
	resp := &GatewayResponse{
		Reference: ch.ID,
		Code:      string(ch.Status),
		Raw: map[string]interface{}{
			"id":            ch.ID,
			"status":        string(ch.Status),
			"amount":        ch.Amount,
			"currency":      ch.Currency,
			"authorize_uri": ch.AuthorizeURI,
		},
	}
	if ch.FailureMessage != nil {
		resp.Message = *ch.FailureMessage
	}

	switch string(ch.Status) {
	case "successful":
		resp.Outcome = OutcomeCaptured
	case "failed", "expired", "reversed":
		resp.Outcome = OutcomeDeclined
	default:
		if ch.AuthorizeURI != "" {
			resp.Outcome = OutcomeRedirect
			resp.RedirectURL = ch.AuthorizeURI
		} else {
			resp.Outcome = OutcomePending
		}
	}
	return resp
}
