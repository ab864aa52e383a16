package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

// FormDefinition is the YAML description of a payment form
type FormDefinition struct {
	Title             string                `yaml:"title"`
	URLSegment        string                `yaml:"url_segment"`
	Content           string                `yaml:"content"`
	SubmitButtonText  string                `yaml:"submit_button_text"`
	Payment           PaymentDefinition     `yaml:"payment"`
	OnCompleteMessage string                `yaml:"on_complete_message"`
	OnErrorMessage    string                `yaml:"on_error_message"`
	DisableSave       bool                  `yaml:"disable_save_submissions"`
	DisableToken      bool                  `yaml:"disable_security_token"`
	Fields            []FieldDefinition     `yaml:"fields"`
	Recipients        []RecipientDefinition `yaml:"recipients"`
}

type PaymentDefinition struct {
	Gateway     string   `yaml:"gateway"`
	Currency    string   `yaml:"currency"`
	AmountField string   `yaml:"amount_field"`
	FieldGroups []string `yaml:"field_groups"`
}

type FieldDefinition struct {
	Name          string   `yaml:"name"`
	Title         string   `yaml:"title"`
	Kind          string   `yaml:"kind"`
	Required      bool     `yaml:"required"`
	ErrorMessage  string   `yaml:"error_message"`
	Default       string   `yaml:"default"`
	Options       []string `yaml:"options"`
	Folder        string   `yaml:"folder"`
	HideInReports bool     `yaml:"hide_in_reports"`
}

type RecipientDefinition struct {
	Address      string   `yaml:"address"`
	From         string   `yaml:"from"`
	ReplyTo      string   `yaml:"reply_to"`
	Subject      string   `yaml:"subject"`
	Body         string   `yaml:"body"`
	Plain        bool     `yaml:"plain"`
	HideFormData bool     `yaml:"hide_form_data"`
	SendFor      []string `yaml:"send_for"`
	FromField    string   `yaml:"from_field"`
	ToField      string   `yaml:"to_field"`
	SubjectField string   `yaml:"subject_field"`
}

var ErrFormExists = errors.New("a form with this url segment already exists")

var knownFieldKinds = map[models.FieldKind]bool{
	models.FieldKindText:          true,
	models.FieldKindEmail:         true,
	models.FieldKindNumeric:       true,
	models.FieldKindTextArea:      true,
	models.FieldKindDropdown:      true,
	models.FieldKindRadio:         true,
	models.FieldKindCheckbox:      true,
	models.FieldKindCheckboxGroup: true,
	models.FieldKindFile:          true,
	models.FieldKindHidden:        true,
}

var knownStatuses = map[models.PaymentStatus]bool{
	models.PaymentStatusCreated:         true,
	models.PaymentStatusPendingPurchase: true,
	models.PaymentStatusCaptured:        true,
	models.PaymentStatusFailed:          true,
	models.PaymentStatusVoid:            true,
	models.PaymentStatusRefunded:        true,
}

// ParseFormDefinition decodes and validates a YAML form definition
func ParseFormDefinition(r io.Reader) (*FormDefinition, error) {
	var def FormDefinition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse form definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition is complete and self consistent
func (d *FormDefinition) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(d.URLSegment) == "" || strings.ContainsAny(d.URLSegment, "/?# ") {
		return fmt.Errorf("url_segment %q is not a valid path segment", d.URLSegment)
	}

	names := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i+1)
		}
		if names[f.Name] {
			return fmt.Errorf("field name %q is used twice", f.Name)
		}
		names[f.Name] = true
		if f.Kind != "" && !knownFieldKinds[models.FieldKind(f.Kind)] {
			return fmt.Errorf("field %q has unknown kind %q", f.Name, f.Kind)
		}
	}

	if d.Payment.AmountField != "" && !names[d.Payment.AmountField] {
		return fmt.Errorf("amount_field %q is not one of the form's fields", d.Payment.AmountField)
	}
	for _, group := range d.Payment.FieldGroups {
		if !isPaymentFieldGroup(group) {
			return fmt.Errorf("unknown payment field group %q", group)
		}
	}

	for i, r := range d.Recipients {
		if r.Address == "" && r.ToField == "" {
			return fmt.Errorf("recipient %d needs an address or a to_field", i+1)
		}
		for _, ref := range []string{r.FromField, r.ToField, r.SubjectField} {
			if ref != "" && !names[ref] {
				return fmt.Errorf("recipient %d refers to unknown field %q", i+1, ref)
			}
		}
		for _, status := range r.SendFor {
			if !knownStatuses[models.PaymentStatus(status)] {
				return fmt.Errorf("recipient %d has unknown status %q", i+1, status)
			}
		}
	}
	return nil
}

func isPaymentFieldGroup(name string) bool {
	for _, g := range models.AllPaymentFieldGroups {
		if string(g) == name {
			return true
		}
	}
	return false
}

// ImportForm creates the form, its fields and its recipients in one transaction
func ImportForm(ctx context.Context, db *gorm.DB, def *FormDefinition, gateways *GatewayRegistry) (*models.PaymentForm, error) {
	if def.Payment.Gateway != "" && gateways != nil {
		if _, ok := gateways.Get(def.Payment.Gateway); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, def.Payment.Gateway)
		}
	}

	form := &models.PaymentForm{
		Title:                  def.Title,
		URLSegment:             def.URLSegment,
		Content:                def.Content,
		SubmitButtonText:       def.SubmitButtonText,
		PaymentGateway:         def.Payment.Gateway,
		PaymentCurrency:        strings.ToUpper(def.Payment.Currency),
		OnCompleteMessage:      def.OnCompleteMessage,
		OnErrorMessage:         def.OnErrorMessage,
		DisableSaveSubmissions: def.DisableSave,
		DisableSecurityToken:   def.DisableToken,
	}
	for _, group := range def.Payment.FieldGroups {
		switch models.PaymentFieldGroup(group) {
		case models.PaymentFieldGroupCard:
			form.PaymentFieldsCard = true
		case models.PaymentFieldGroupBilling:
			form.PaymentFieldsBilling = true
		case models.PaymentFieldGroupShipping:
			form.PaymentFieldsShipping = true
		case models.PaymentFieldGroupCompany:
			form.PaymentFieldsCompany = true
		case models.PaymentFieldGroupEmail:
			form.PaymentFieldsEmail = true
		}
	}
	for i, f := range def.Fields {
		kind := models.FieldKind(f.Kind)
		if kind == "" {
			kind = models.FieldKindText
		}
		title := f.Title
		if title == "" {
			title = f.Name
		}
		form.Fields = append(form.Fields, models.FormField{
			Name:               f.Name,
			Title:              title,
			Kind:               kind,
			Required:           f.Required,
			CustomErrorMessage: f.ErrorMessage,
			Default:            f.Default,
			Options:            f.Options,
			FolderName:         f.Folder,
			ShowInReports:      !f.HideInReports,
			Sort:               i + 1,
		})
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Unscoped().Model(&models.PaymentForm{}).Where("url_segment = ?", def.URLSegment).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s", ErrFormExists, def.URLSegment)
		}

		if err := tx.Create(form).Error; err != nil {
			return fmt.Errorf("failed to create form: %w", err)
		}

		fieldIDs := make(map[string]uint, len(form.Fields))
		for _, f := range form.Fields {
			fieldIDs[f.Name] = f.ID
		}

		if def.Payment.AmountField != "" {
			id := fieldIDs[def.Payment.AmountField]
			form.PaymentAmountFieldID = &id
			if err := tx.Model(form).Update("payment_amount_field_id", id).Error; err != nil {
				return fmt.Errorf("failed to set amount field: %w", err)
			}
		}

		fieldRef := func(name string) *uint {
			if name == "" {
				return nil
			}
			id := fieldIDs[name]
			return &id
		}
		for _, r := range def.Recipients {
			recipient := models.EmailRecipient{
				FormID:                  form.ID,
				EmailAddress:            r.Address,
				EmailFrom:               r.From,
				EmailReplyTo:            r.ReplyTo,
				EmailSubject:            r.Subject,
				EmailBody:               r.Body,
				SendPlain:               r.Plain,
				HideFormData:            r.HideFormData,
				SendForStatuses:         r.SendFor,
				SendEmailFromFieldID:    fieldRef(r.FromField),
				SendEmailToFieldID:      fieldRef(r.ToField),
				SendEmailSubjectFieldID: fieldRef(r.SubjectField),
			}
			if err := tx.Create(&recipient).Error; err != nil {
				return fmt.Errorf("failed to create recipient: %w", err)
			}
			form.EmailRecipients = append(form.EmailRecipients, recipient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}
