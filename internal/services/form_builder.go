package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"userform_payments/internal/models"
)

// FormErrorKey is the errors entry for problems not tied to a field
const FormErrorKey = "_form"

const securityTokenMessage = "There seems to have been a technical problem. Please click the back button, refresh your browser, and try again."

// RenderField is one input of a rendered form
type RenderField struct {
	Name     string
	Title    string
	Type     string
	Options  []string
	Value    string
	Values   []string
	Required bool
	Error    string
}

// FieldGroup is a titled set of inputs
type FieldGroup struct {
	Class  string
	Fields []RenderField
}

// RenderedForm is everything a template needs to draw a payment form
type RenderedForm struct {
	Name         string
	Action       string
	SubmitText   string
	Fields       []RenderField
	PaymentGroup FieldGroup
	Required     []string
	SecurityID   string
	Errors       map[string]string
	Messages     []string
}

type FormBuilder struct {
	gateways *GatewayRegistry
	hooks    *Hooks
}

func NewFormBuilder(gateways *GatewayRegistry, hooks *Hooks) *FormBuilder {
	return &FormBuilder{gateways: gateways, hooks: hooks}
}

func (b *FormBuilder) fieldsFactory(form *models.PaymentForm) *GatewayFieldsFactory {
	var gw Gateway
	if b.gateways != nil {
		if g, ok := b.gateways.Get(form.PaymentGateway); ok {
			gw = g
		}
	}
	return NewGatewayFieldsFactory(gw, form.PaymentFieldGroups())
}

// Build assembles the generic fields followed by the payment group,
// repopulated from the visitor's last failed attempt.
func (b *FormBuilder) Build(ctx context.Context, form *models.PaymentForm, rc RequestContext) (*RenderedForm, error) {
	name := form.FormName()
	session := rc.Session

	data := url.Values{}
	if _, err := session.Get(ctx, FormDataKey(name), &data); err != nil {
		return nil, err
	}
	errs := map[string]string{}
	if _, err := session.Get(ctx, FormErrorsKey(name), &errs); err != nil {
		return nil, err
	}

	required := map[string]bool{}
	requiredNames := b.RequiredFields(form)
	for _, n := range requiredNames {
		required[n] = true
	}

	submitText := form.SubmitButtonText
	if submitText == "" {
		submitText = "Submit"
	}

	rendered := &RenderedForm{
		Name:       name,
		Action:     form.Link("Form"),
		SubmitText: submitText,
		Required:   requiredNames,
		Errors:     errs,
	}
	if msg := errs[FormErrorKey]; msg != "" {
		rendered.Messages = append(rendered.Messages, msg)
	}

	fields := append([]models.FormField(nil), form.Fields...)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Sort < fields[j].Sort })
	for _, field := range fields {
		rf := RenderField{
			Name:     field.Name,
			Title:    field.Title,
			Type:     inputType(field.Kind),
			Options:  field.Options,
			Required: required[field.Name],
			Error:    errs[field.Name],
		}
		if values, ok := data[field.Name]; ok {
			rf.Values = values
			if len(values) > 0 {
				rf.Value = values[0]
			}
		} else if field.Default != "" {
			rf.Value = field.Default
			rf.Values = []string{field.Default}
		}
		if field.IsUpload() {
			rf.Value = ""
			rf.Values = nil
		}
		rendered.Fields = append(rendered.Fields, rf)
	}

	rendered.PaymentGroup.Class = strings.ToLower(form.PaymentGateway) + "_fields"
	for _, gf := range b.fieldsFactory(form).Fields() {
		title := gf.Title
		switch gf.Name {
		case "billingAddress1":
			title = "Address Line 1"
		case "billingAddress2":
			title = "Address Line 2"
		}
		rf := RenderField{
			Name:     gf.Name,
			Title:    title,
			Type:     gf.Type,
			Required: required[gf.Name],
			Error:    errs[gf.Name],
		}
		if !sensitiveFieldNames[gf.Name] {
			rf.Value = data.Get(gf.Name)
		}
		rendered.PaymentGroup.Fields = append(rendered.PaymentGroup.Fields, rf)
	}

	if !form.DisableSecurityToken {
		token, err := EnsureSecurityToken(ctx, session)
		if err != nil {
			return nil, err
		}
		rendered.SecurityID = token
	}

	b.hooks.formFields(ctx, form, rendered)
	return rendered, nil
}

// RequiredFields lists the generic required fields, every payment field
// except billingAddress2, and the amount field. Nameless fields are skipped.
func (b *FormBuilder) RequiredFields(form *models.PaymentForm) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, field := range form.Fields {
		if field.Required {
			add(field.Name)
		}
	}
	for _, gf := range b.fieldsFactory(form).Fields() {
		if gf.Name == "billingAddress2" {
			continue
		}
		add(gf.Name)
	}
	if amount, err := form.AmountField(); err == nil {
		add(amount.Name)
	}
	return names
}

// ValidateSubmission returns field name -> message for everything wrong
// with a submission. An empty map means the submission can be processed.
func (b *FormBuilder) ValidateSubmission(ctx context.Context, form *models.PaymentForm, data url.Values, files map[string][]*multipart.FileHeader, session SessionStore) (map[string]string, error) {
	errs := map[string]string{}

	if !form.DisableSecurityToken {
		var expected string
		found, err := session.Get(ctx, SessionKeySecurityID, &expected)
		if err != nil {
			return nil, err
		}
		if !found || expected == "" || data.Get("SecurityID") != expected {
			errs[FormErrorKey] = securityTokenMessage
			return errs, nil
		}
	}

	fieldsByName := map[string]models.FormField{}
	for _, field := range form.Fields {
		fieldsByName[field.Name] = field
	}

	for _, name := range b.RequiredFields(form) {
		field, generic := fieldsByName[name]
		if generic && field.IsUpload() {
			if len(files[name]) == 0 {
				errs[name] = field.ErrorMessage()
			}
			continue
		}

		present := false
		for _, v := range data[name] {
			if strings.TrimSpace(v) != "" {
				present = true
				break
			}
		}
		if present {
			continue
		}
		if generic {
			errs[name] = field.ErrorMessage()
		} else {
			errs[name] = name + " is required"
		}
	}

	if amount, err := form.AmountField(); err == nil {
		if _, missing := errs[amount.Name]; !missing {
			value, err := decimal.NewFromString(strings.TrimSpace(data.Get(amount.Name)))
			if err != nil || !value.IsPositive() {
				errs[amount.Name] = "Please enter a valid amount"
			}
		}
	}

	return errs, nil
}

// StashFailedSubmission keeps the submitted values and errors so the
// form can be redrawn with them.
func (b *FormBuilder) StashFailedSubmission(ctx context.Context, form *models.PaymentForm, session SessionStore, data url.Values, errs map[string]string) error {
	name := form.FormName()
	if err := session.Set(ctx, FormDataKey(name), auditData(data)); err != nil {
		return err
	}
	return session.Set(ctx, FormErrorsKey(name), errs)
}

// EnsureSecurityToken returns the session's form token, creating one if needed
func EnsureSecurityToken(ctx context.Context, session SessionStore) (string, error) {
	var token string
	found, err := session.Get(ctx, SessionKeySecurityID, &token)
	if err != nil {
		return "", err
	}
	if found && token != "" {
		return token, nil
	}

	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token = hex.EncodeToString(buf)
	if err := session.Set(ctx, SessionKeySecurityID, token); err != nil {
		return "", err
	}
	return token, nil
}

// auditData is the submission minus card secrets
func auditData(data url.Values) url.Values {
	out := url.Values{}
	for k, v := range data {
		if sensitiveFieldNames[k] || k == "SecurityID" || k == "omiseToken" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func inputType(kind models.FieldKind) string {
	switch kind {
	case models.FieldKindEmail:
		return "email"
	case models.FieldKindNumeric:
		return "number"
	case models.FieldKindTextArea:
		return "textarea"
	case models.FieldKindDropdown:
		return "select"
	case models.FieldKindRadio:
		return "radio"
	case models.FieldKindCheckbox:
		return "checkbox"
	case models.FieldKindCheckboxGroup:
		return "checkboxgroup"
	case models.FieldKindFile:
		return "file"
	case models.FieldKindHidden:
		return "hidden"
	default:
		return "text"
	}
}
