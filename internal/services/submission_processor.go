package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

// Uploads under this size are attached to notification emails
const attachmentSizeLimit = 1024 * 1024

// FileLoader turns an uploaded file into a stored File record
type FileLoader interface {
	LoadIntoFile(ctx context.Context, header *multipart.FileHeader, file *models.File, folder string) error
}

type ProcessInput struct {
	Form         *models.PaymentForm
	Data         url.Values
	Files        map[string][]*multipart.FileHeader
	Request      RequestContext
	FinishedLink string // absolute url of the form's finished page
}

type ProcessResult struct {
	Submission  *models.SubmittedPaymentForm
	Payment     *models.Payment
	Response    *ServiceResponse
	Fields      []models.SubmittedFormField
	Attachments []models.File
	EmailData   *EmailData
}

// SubmissionProcessor records a validated submission and starts its payment
type SubmissionProcessor struct {
	db       *gorm.DB
	payments *PaymentService
	uploads  FileLoader
	hooks    *Hooks
}

func NewSubmissionProcessor(db *gorm.DB, payments *PaymentService, uploads FileLoader, hooks *Hooks) *SubmissionProcessor {
	return &SubmissionProcessor{db: db, payments: payments, uploads: uploads, hooks: hooks}
}

// Process runs a submission through to payment initiation. Upload problems
// come back as *UploadValidationError and gateway failures as *GatewayError.
func (p *SubmissionProcessor) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	form := in.Form
	session := in.Request.Session
	formName := form.FormName()
	saving := !form.DisableSaveSubmissions

	// audit trail, kept until the submission succeeds
	if err := session.Set(ctx, FormDataKey(formName), auditData(in.Data)); err != nil {
		return nil, err
	}
	if err := session.Clear(ctx, FormErrorsKey(formName)); err != nil {
		return nil, err
	}

	submission := &models.SubmittedPaymentForm{
		ParentID:      form.ID,
		SubmittedByID: in.Request.CurrentUserID(),
	}
	if saving {
		if err := p.db.WithContext(ctx).Create(submission).Error; err != nil {
			return nil, fmt.Errorf("save submission: %w", err)
		}
	}

	var fields []models.SubmittedFormField
	var attachments []models.File
	for i := range form.Fields {
		field := &form.Fields[i]
		if !field.ShowInReports {
			continue
		}

		submitted := models.SubmittedFormField{
			ParentID: submission.ID,
			Name:     field.Name,
			Title:    field.Title,
		}
		if field.HasValueAccessor() {
			submitted.Value = field.ValueFromData(in.Data)
		} else if values := in.Data[field.Name]; len(values) > 0 {
			submitted.Value = values[0]
		}

		if field.IsUpload() {
			if headers := in.Files[field.Name]; len(headers) > 0 && headers[0] != nil {
				file := &models.File{}
				if err := p.uploads.LoadIntoFile(ctx, headers[0], file, field.FolderName); err != nil {
					var verr *UploadValidationError
					if errors.As(err, &verr) {
						verr.Field = field.Name
						if serr := session.Set(ctx, FormErrorsKey(formName), map[string]string{field.Name: verr.Message}); serr != nil {
							log.Printf("Failed to record upload error for %s: %v", formName, serr)
						}
					}
					return nil, err
				}
				submitted.UploadedFileID = &file.ID
				submitted.UploadedFile = file
				submitted.Value = file.Name
				if file.Size < attachmentSizeLimit {
					attachments = append(attachments, *file)
				}
			}
		}

		p.hooks.fieldPopulated(ctx, &submitted, field)

		if saving {
			if err := p.db.WithContext(ctx).Omit("UploadedFile").Create(&submitted).Error; err != nil {
				return nil, fmt.Errorf("save submitted field %s: %w", field.Name, err)
			}
		}
		fields = append(fields, submitted)
	}

	amountField, err := form.AmountField()
	if err != nil {
		return nil, err
	}
	rawAmount := strings.TrimSpace(in.Data.Get(amountField.Name))
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid payment amount %q: %w", rawAmount, err)
	}

	finished := in.FinishedLink
	if referrer := in.Data.Get("Referrer"); referrer != "" {
		finished += "?referrer=" + url.QueryEscape(referrer)
	}

	payment, err := p.payments.CreatePayment(ctx, form.PaymentGateway, amount, form.PaymentCurrency, finished, finished)
	if err != nil {
		return nil, err
	}

	response, err := p.payments.Initiate(ctx, payment, in.Data)
	if err != nil {
		return nil, err
	}

	submission.PaymentID = &payment.ID
	submission.Payment = payment
	if saving {
		if err := p.db.WithContext(ctx).Model(submission).Update("payment_id", payment.ID).Error; err != nil {
			return nil, fmt.Errorf("link payment to submission: %w", err)
		}
	}

	emailData := &EmailData{
		Sender:  in.Request.CurrentUser,
		Fields:  fields,
		Payment: payment,
	}
	p.hooks.emailData(ctx, emailData, &attachments)
	p.hooks.afterProcess(ctx, submission)

	if err := session.Clear(ctx, FormErrorsKey(formName), FormDataKey(formName)); err != nil {
		return nil, err
	}

	if token := in.Data.Get("SecurityID"); token != "" {
		if err := session.Set(ctx, SessionKeyFormProcessed, token); err != nil {
			return nil, err
		}
	} else if form.DisableSecurityToken {
		num := rand.Intn(1000) + 1
		if err := session.Set(ctx, SessionKeyFormProcessed, processedHash(num)); err != nil {
			return nil, err
		}
		if err := session.Set(ctx, SessionKeyFormProcessedNum, num); err != nil {
			return nil, err
		}
	}

	if saving {
		if err := session.Set(ctx, SubmissionKey(form.ID), submission.ID); err != nil {
			return nil, err
		}
		pending := PendingNotification{Extra: emailData.Extra}
		for _, file := range attachments {
			if file.ID != 0 {
				pending.AttachmentIDs = append(pending.AttachmentIDs, file.ID)
			}
		}
		if err := session.Set(ctx, NotificationKey(form.ID), pending); err != nil {
			return nil, err
		}
	}

	return &ProcessResult{
		Submission:  submission,
		Payment:     payment,
		Response:    response,
		Fields:      fields,
		Attachments: attachments,
		EmailData:   emailData,
	}, nil
}

// processedHash is the anti-replay marker used when tokens are disabled
func processedHash(num int) string {
	sum := md5.Sum([]byte(strconv.Itoa(num)))
	return hex.EncodeToString(sum[:])
}
