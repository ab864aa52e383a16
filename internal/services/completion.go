package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

type CompletionResult struct {
	Redirect    bool
	RedirectURL string

	Submission       *models.SubmittedPaymentForm
	Payment          *models.Payment
	Referrer         string
	OnSuccessMessage string
	AmountNice       string
	ShowForm         bool
}

// CompletionHandler builds the finished page and sends the notifications
type CompletionHandler struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

func NewCompletionHandler(db *gorm.DB, dispatcher *Dispatcher) *CompletionHandler {
	return &CompletionHandler{db: db, dispatcher: dispatcher}
}

// Finish only runs once per processed submission: without a valid
// anti-replay marker the visitor is sent back to the form.
func (h *CompletionHandler) Finish(ctx context.Context, form *models.PaymentForm, rc RequestContext, referrer string) (*CompletionResult, error) {
	session := rc.Session

	ok, err := h.markerValid(ctx, session)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &CompletionResult{Redirect: true, RedirectURL: form.Link("")}, nil
	}

	result := &CompletionResult{
		Referrer:   referrer,
		AmountNice: models.FormatAmount(decimal.Zero, ""),
		ShowForm:   true,
	}

	var submissionID uint
	found, err := session.Get(ctx, SubmissionKey(form.ID), &submissionID)
	if err != nil {
		return nil, err
	}
	if found && submissionID != 0 {
		var submission models.SubmittedPaymentForm
		err := h.db.WithContext(ctx).
			Preload("Payment").
			Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
			Preload("Values.UploadedFile").
			First(&submission, submissionID).Error
		if err != nil {
			return nil, fmt.Errorf("load submission %d: %w", submissionID, err)
		}
		result.Submission = &submission

		if payment := submission.Payment; payment != nil {
			result.Payment = payment
			result.AmountNice = payment.AmountNice()
			result.ShowForm = payment.Status != models.PaymentStatusCaptured

			recipients := FilteredEmailRecipients(form, payment.Status)
			if len(recipients) > 0 {
				data := &EmailData{
					Sender:  rc.CurrentUser,
					Fields:  submission.Values,
					Payment: payment,
				}
				attachments, err := h.pendingAttachments(ctx, form, session, &submission, data)
				if err != nil {
					return nil, err
				}
				if err := h.dispatcher.SendToRecipients(ctx, recipients, attachments, data); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := session.Clear(ctx, SessionKeyFormProcessed, SessionKeyFormProcessedNum, SubmissionKey(form.ID), NotificationKey(form.ID)); err != nil {
		return nil, err
	}

	result.OnSuccessMessage = strings.ReplaceAll(form.OnCompleteMessage, "[amount]", result.AmountNice)
	return result, nil
}

// pendingAttachments restores what the processor's email data hooks
// produced. Without a stored notification the submission's own small
// uploads are attached.
func (h *CompletionHandler) pendingAttachments(ctx context.Context, form *models.PaymentForm, session SessionStore, submission *models.SubmittedPaymentForm, data *EmailData) ([]models.File, error) {
	var pending PendingNotification
	found, err := session.Get(ctx, NotificationKey(form.ID), &pending)
	if err != nil {
		return nil, err
	}
	if !found {
		var attachments []models.File
		for _, value := range submission.Values {
			if value.UploadedFile != nil && value.UploadedFile.Size < attachmentSizeLimit {
				attachments = append(attachments, *value.UploadedFile)
			}
		}
		return attachments, nil
	}

	data.Extra = pending.Extra
	if len(pending.AttachmentIDs) == 0 {
		return nil, nil
	}
	var files []models.File
	if err := h.db.WithContext(ctx).Where("id IN ?", pending.AttachmentIDs).Order("id asc").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	return files, nil
}

func (h *CompletionHandler) markerValid(ctx context.Context, session SessionStore) (bool, error) {
	var processed string
	found, err := session.Get(ctx, SessionKeyFormProcessed, &processed)
	if err != nil {
		return false, err
	}
	if !found || processed == "" {
		return false, nil
	}

	var securityID string
	if _, err := session.Get(ctx, SessionKeySecurityID, &securityID); err != nil {
		return false, err
	}
	if processed == securityID {
		return true, nil
	}

	var num int
	found, err = session.Get(ctx, SessionKeyFormProcessedNum, &num)
	if err != nil {
		return false, err
	}
	return found && processed == processedHash(num), nil
}
