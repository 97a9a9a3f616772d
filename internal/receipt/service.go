package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/receipt-scanner/internal/extraction"
	"github.com/zombor/receipt-scanner/internal/recognition"
)

// Recognizer produces a winning raw-text result for one image. The
// orchestrator implements it; tests substitute their own.
type Recognizer interface {
	Recognize(ctx context.Context, in recognition.Input, opts recognition.Options) (*recognition.Outcome, error)
}

// Extractor converts winning raw text into a structured receipt.
type Extractor func(rawText string) *extraction.StructuredReceipt

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service ties the pipeline together: store the original file, obtain
// raw text from the recognizer, extract the structured record, persist
// it.
type Service struct {
	db          DB
	recognizer  Recognizer
	extract     Extractor
	storage     Storage
	options     recognition.Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, recognizer Recognizer, storage Storage, opts recognition.Options) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		extract:     extraction.Extract,
		storage:     storage,
		options:     opts,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer Recognizer, extract Extractor, storage Storage, opts recognition.Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		extract:     extract,
		storage:     storage,
		options:     opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt runs the full pipeline for one uploaded image and
// returns the stored record. The only recognition failure surfaced to
// the caller is total backend exhaustion; an incomplete extraction is
// a normal result with diagnostics in the receipt's Errors.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*ProcessedReceipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	// Sanitize filename to clean up phone-generated long filenames
	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	outcome, err := s.recognizer.Recognize(ctx, recognition.Input{
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
	}, s.options)
	if err != nil {
		slog.Error("Failed to recognize receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since recognition failed
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("recognizing receipt: %w", err)
	}

	slog.Info("Receipt recognized",
		"filename", filename,
		"backend", outcome.ServiceUsed,
		"fallback_used", outcome.FallbackUsed,
		"confidence", outcome.Result.Confidence,
		"text_length", len(outcome.Result.Text),
	)

	structured := s.extract(outcome.Result.Text)
	structured.Confidence = outcome.Result.Confidence
	if len(structured.Errors) > 0 {
		slog.Warn("Extraction left fields unresolved",
			"filename", filename,
			"diagnostics", structured.Errors,
		)
	}

	record := &ProcessedReceipt{
		ID:           id,
		Receipt:      structured,
		ServiceUsed:  outcome.ServiceUsed,
		FallbackUsed: outcome.FallbackUsed,
		Filename:     savedPath,
		ContentType:  contentType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveReceipt(record); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return record, nil
}

// GetReceipt retrieves a processed receipt by ID
func (s *Service) GetReceipt(id string) (*ProcessedReceipt, error) {
	record, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return record, nil
}

// ListReceipts returns all processed receipts
func (s *Service) ListReceipts() ([]*ProcessedReceipt, error) {
	records, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return records, nil
}

// DeleteReceipt removes a processed receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	record, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(record.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the original file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	record, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, record.ContentType, nil
}
