package services

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"userform_payments/internal/models"
)

// GatewayOutcome is what a gateway did with a purchase
type GatewayOutcome string

const (
	// OutcomeRedirect sends the visitor off-site to finish paying
	OutcomeRedirect GatewayOutcome = "redirect"
	// OutcomeCaptured means the funds were taken synchronously
	OutcomeCaptured GatewayOutcome = "captured"
	// OutcomePending means the gateway accepted the request but has not settled it
	OutcomePending GatewayOutcome = "pending"
	// OutcomeDeclined means the gateway refused the payment
	OutcomeDeclined GatewayOutcome = "declined"
)

// PurchaseRequest is handed to a gateway when a payment is initiated
type PurchaseRequest struct {
	Payment   *models.Payment
	ReturnURL string // gateway return endpoint for this payment
	CancelURL string
	Data      url.Values
}

// GatewayResponse is the gateway's reply to a purchase or status check
type GatewayResponse struct {
	Outcome     GatewayOutcome
	RedirectURL string
	Body        string // pre-rendered page some gateways need posted by the browser
	Reference   string
	Code        string
	Message     string
	Raw         map[string]interface{}
}

// Gateway is a payment processing backend
type Gateway interface {
	Name() string
	// Offsite gateways collect card details on their own pages
	Offsite() bool
	Purchase(ctx context.Context, req PurchaseRequest) (*GatewayResponse, error)
	CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*GatewayResponse, error)
}

// NotificationHandler is implemented by gateways that push status updates
type NotificationHandler interface {
	HandleNotification(ctx context.Context, body []byte) (identifier string, resp *GatewayResponse, err error)
}

// GatewayError is a recoverable failure while talking to a gateway
type GatewayError struct {
	Gateway string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Gateway, e.Message)
}

// GatewayRegistry maps gateway names to implementations
type GatewayRegistry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewGatewayRegistry(gateways ...Gateway) *GatewayRegistry {
	r := &GatewayRegistry{gateways: make(map[string]Gateway)}
	for _, gw := range gateways {
		r.Register(gw)
	}
	return r
}

// Register adds or replaces a gateway
func (r *GatewayRegistry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// Get looks up a gateway by name
func (r *GatewayRegistry) Get(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[name]
	return gw, ok
}

// SupportedGateways lists registered gateway names in sorted order
func (r *GatewayRegistry) SupportedGateways() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
