package services

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/omise/omise-go"
	"github.com/shopspring/decimal"

	"userform_payments/internal/models"
)

func TestChargeResponse(t *testing.T) {
	tests := []struct {
		name         string
		charge       string
		want         GatewayOutcome
		wantRedirect string
		wantMessage  string
	}{
		{"successful", `{"id":"chrg_1","status":"successful"}`, OutcomeCaptured, "", ""},
		{"failed", `{"id":"chrg_2","status":"failed","failure_message":"insufficient funds"}`, OutcomeDeclined, "", "insufficient funds"},
		{"expired", `{"id":"chrg_3","status":"expired"}`, OutcomeDeclined, "", ""},
		{"3-D Secure", `{"id":"chrg_4","status":"pending","authorize_uri":"https://api.omise.co/payments/abc/authorize"}`, OutcomeRedirect, "https://api.omise.co/payments/abc/authorize", ""},
		{"pending", `{"id":"chrg_5","status":"pending"}`, OutcomePending, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &omise.Charge{}
			if err := json.Unmarshal([]byte(tt.charge), ch); err != nil {
				t.Fatal(err)
			}
			resp := chargeResponse(ch)
			if resp.Outcome != tt.want || resp.RedirectURL != tt.wantRedirect || resp.Message != tt.wantMessage {
				t.Errorf("resp = %+v", resp)
			}
			if resp.Reference != ch.ID {
				t.Errorf("Reference = %q; want %q", resp.Reference, ch.ID)
			}
		})
	}
}

func TestOmiseRejectsBadInputBeforeCallingOut(t *testing.T) {
	gw, err := NewOmiseGateway("pkey_test_123", "skey_test_123")
	if err != nil {
		t.Fatal(err)
	}
	if gw.Offsite() {
		t.Error("omise collects card details on the form")
	}

	payment := &models.Payment{Identifier: "p-1", Amount: decimal.NewFromInt(10), Currency: "THB"}
	_, err = gw.Purchase(context.Background(), PurchaseRequest{
		Payment: payment,
		Data:    url.Values{"number": {"4242424242424242"}, "expiryMonth": {"13"}, "expiryYear": {"30"}},
	})
	if err == nil || !strings.Contains(err.Error(), "expiry month") {
		t.Errorf("Purchase err = %v", err)
	}

	if _, err := gw.CompletePurchase(context.Background(), payment, nil); err == nil {
		t.Error("CompletePurchase without a charge reference should fail")
	}

	if _, _, err := gw.HandleNotification(context.Background(), []byte(`{"object":"event"}`)); err == nil {
		t.Error("notification without an event id should fail")
	}
}
