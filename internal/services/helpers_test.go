package services

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"userform_payments/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeGateway struct {
	name    string
	offsite bool

	purchase    *GatewayResponse
	purchaseErr error
	complete    *GatewayResponse
	completeErr error

	notifyID string
	notify   *GatewayResponse

	mu       sync.Mutex
	requests []PurchaseRequest
}

func (g *fakeGateway) Name() string  { return g.name }
func (g *fakeGateway) Offsite() bool { return g.offsite }

func (g *fakeGateway) Purchase(ctx context.Context, req PurchaseRequest) (*GatewayResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.purchaseErr != nil {
		return nil, g.purchaseErr
	}
	if g.purchase != nil {
		return g.purchase, nil
	}
	return &GatewayResponse{Outcome: OutcomeCaptured, Reference: "TXN-1"}, nil
}

func (g *fakeGateway) CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*GatewayResponse, error) {
	if g.completeErr != nil {
		return nil, g.completeErr
	}
	if g.complete != nil {
		return g.complete, nil
	}
	return &GatewayResponse{Outcome: OutcomePending}, nil
}

func (g *fakeGateway) HandleNotification(ctx context.Context, body []byte) (string, *GatewayResponse, error) {
	return g.notifyID, g.notify, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*Email
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, email *Email) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

type memoryFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryFileStore() *memoryFileStore {
	return &memoryFileStore{files: map[string][]byte{}}
}

func (s *memoryFileStore) Save(ctx context.Context, name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = b
	return nil
}

func (s *memoryFileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// newTestForm creates a form with Name, Email, Amount and an optional upload field
func newTestForm(t *testing.T, db *gorm.DB, gateway string, configure func(*models.PaymentForm)) *models.PaymentForm {
	t.Helper()
	form := &models.PaymentForm{
		Title:          "Donate",
		URLSegment:     "donate",
		PaymentGateway: gateway,
		Fields: []models.FormField{
			{Name: "Name", Title: "Your name", Kind: models.FieldKindText, Required: true, Sort: 1, ShowInReports: true},
			{Name: "Email", Title: "Email", Kind: models.FieldKindEmail, Sort: 2, ShowInReports: true},
			{Name: "Amount", Title: "Amount", Kind: models.FieldKindNumeric, Sort: 3, ShowInReports: true},
			{Name: "Receipt", Title: "Receipt", Kind: models.FieldKindFile, FolderName: "receipts", Sort: 4, ShowInReports: true},
		},
	}
	if configure != nil {
		configure(form)
	}
	if err := db.Create(form).Error; err != nil {
		t.Fatalf("create form: %v", err)
	}

	amountID := form.Fields[2].ID
	form.PaymentAmountFieldID = &amountID
	if err := db.Model(form).Update("payment_amount_field_id", amountID).Error; err != nil {
		t.Fatalf("set amount field: %v", err)
	}
	return form
}

func newRequestContext() RequestContext {
	return RequestContext{Session: NewMemorySessionProvider(time.Hour).Session("test-session")}
}

// fileHeader builds a real multipart header the way net/http would parse it
func fileHeader(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return req.MultipartForm.File[field][0]
}
