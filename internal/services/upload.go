package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"userform_payments/internal/models"
)

const defaultUploadFolder = "Uploads"

// UploadValidationError is a rejected upload that the visitor can fix
type UploadValidationError struct {
	Field   string
	Message string
}

func (e *UploadValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FileStore persists uploaded file contents
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DiskFileStore keeps files under a local directory
type DiskFileStore struct {
	root string
}

func NewDiskFileStore(root string) *DiskFileStore {
	return &DiskFileStore{root: root}
}

func (s *DiskFileStore) Save(ctx context.Context, name string, r io.Reader) error {
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *DiskFileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(name)))
}

// BucketFileStore keeps files in a Cloud Storage bucket
type BucketFileStore struct {
	bucket *gcs.BucketHandle
}

func NewBucketFileStore(bucket *gcs.BucketHandle) *BucketFileStore {
	return &BucketFileStore{bucket: bucket}
}

func (s *BucketFileStore) Save(ctx context.Context, name string, r io.Reader) error {
	w := s.bucket.Object(name).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *BucketFileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.bucket.Object(name).NewReader(ctx)
}

// Uploader validates uploads and turns them into File records
type Uploader struct {
	db       *gorm.DB
	store    FileStore
	maxBytes int64
	allowed  map[string]bool
}

// NewUploader accepts lower-case extensions without the dot; an empty list allows any
func NewUploader(db *gorm.DB, store FileStore, maxBytes int64, extensions []string) *Uploader {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return &Uploader{db: db, store: store, maxBytes: maxBytes, allowed: allowed}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// LoadIntoFile stores the upload in folder and fills in and writes file
func (u *Uploader) LoadIntoFile(ctx context.Context, header *multipart.FileHeader, file *models.File, folder string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if len(u.allowed) > 0 && !u.allowed[ext] {
		return &UploadValidationError{Message: fmt.Sprintf("Extension '%s' is not allowed", ext)}
	}
	if u.maxBytes > 0 && header.Size > u.maxBytes {
		return &UploadValidationError{Message: fmt.Sprintf("Filesize is too large, maximum %s allowed", formatBytes(u.maxBytes))}
	}

	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer src.Close()

	if folder == "" {
		folder = defaultUploadFolder
	}
	base := unsafeFilenameChars.ReplaceAllString(filepath.Base(header.Filename), "-")
	name := path.Join(folder, uuid.NewString()[:8]+"-"+base)
	if err := u.store.Save(ctx, name, src); err != nil {
		return fmt.Errorf("store upload %s: %w", header.Filename, err)
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	file.Name = header.Filename
	file.Filename = name
	file.Folder = folder
	file.Size = header.Size
	file.ContentType = contentType
	file.ShowInSearch = false
	if err := u.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("save file record: %w", err)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
