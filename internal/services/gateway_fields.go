package services

import "userform_payments/internal/models"

// GatewayField is an input a gateway needs from the visitor
type GatewayField struct {
	Name  string
	Title string
	Type  string // html input type
	Group models.PaymentFieldGroup
}

var cardFields = []GatewayField{
	{Name: "name", Title: "Name on Card", Type: "text"},
	{Name: "number", Title: "Card Number", Type: "text"},
	{Name: "expiryMonth", Title: "Expiry Month", Type: "text"},
	{Name: "expiryYear", Title: "Expiry Year", Type: "text"},
	{Name: "cvv", Title: "Security Code", Type: "password"},
}

var billingFields = []GatewayField{
	{Name: "billingAddress1", Title: "Address", Type: "text"},
	{Name: "billingAddress2", Title: "Address", Type: "text"},
	{Name: "city", Title: "City", Type: "text"},
	{Name: "postcode", Title: "Postcode", Type: "text"},
	{Name: "state", Title: "State", Type: "text"},
	{Name: "country", Title: "Country", Type: "text"},
	{Name: "phone", Title: "Phone", Type: "tel"},
}

var shippingFields = []GatewayField{
	{Name: "shippingFirstName", Title: "First Name", Type: "text"},
	{Name: "shippingLastName", Title: "Last Name", Type: "text"},
	{Name: "shippingAddress1", Title: "Shipping Address", Type: "text"},
	{Name: "shippingAddress2", Title: "Shipping Address 2", Type: "text"},
	{Name: "shippingCity", Title: "Shipping City", Type: "text"},
	{Name: "shippingPostcode", Title: "Shipping Postcode", Type: "text"},
	{Name: "shippingState", Title: "Shipping State", Type: "text"},
	{Name: "shippingCountry", Title: "Shipping Country", Type: "text"},
	{Name: "shippingPhone", Title: "Shipping Phone", Type: "tel"},
}

var companyFields = []GatewayField{
	{Name: "company", Title: "Company", Type: "text"},
}

var emailFields = []GatewayField{
	{Name: "email", Title: "Email", Type: "email"},
}

// sensitiveFieldNames are never written to the session or the database
var sensitiveFieldNames = map[string]bool{
	"number": true,
	"cvv":    true,
}

// GatewayFieldsFactory builds the payment inputs for a gateway and its enabled groups
type GatewayFieldsFactory struct {
	gateway Gateway
	groups  []models.PaymentFieldGroup
}

// NewGatewayFieldsFactory accepts a nil gateway, which yields no fields at all
func NewGatewayFieldsFactory(gateway Gateway, groups []models.PaymentFieldGroup) *GatewayFieldsFactory {
	return &GatewayFieldsFactory{gateway: gateway, groups: groups}
}

// Fields returns the fields of every enabled group in group order
func (f *GatewayFieldsFactory) Fields() []GatewayField {
	if f.gateway == nil {
		return nil
	}
	var fields []GatewayField
	for _, group := range f.groups {
		fields = append(fields, f.groupFields(group)...)
	}
	return fields
}

func (f *GatewayFieldsFactory) groupFields(group models.PaymentFieldGroup) []GatewayField {
	var src []GatewayField
	switch group {
	case models.PaymentFieldGroupCard:
		if f.gateway.Offsite() {
			return nil
		}
		src = cardFields
	case models.PaymentFieldGroupBilling:
		src = billingFields
	case models.PaymentFieldGroupShipping:
		src = shippingFields
	case models.PaymentFieldGroupCompany:
		src = companyFields
	case models.PaymentFieldGroupEmail:
		src = emailFields
	}

	out := make([]GatewayField, len(src))
	for i, field := range src {
		field.Group = group
		out[i] = field
	}
	return out
}
