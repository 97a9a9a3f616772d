package receipt

import (
	"time"

	"github.com/zombor/receipt-scanner/internal/extraction"
)

// ProcessedReceipt is one stored processing result: the structured
// record plus how it was obtained and where the original file lives.
type ProcessedReceipt struct {
	ID           string                        `json:"id"`
	Receipt      *extraction.StructuredReceipt `json:"receipt"`
	ServiceUsed  string                        `json:"service_used"`
	FallbackUsed bool                          `json:"fallback_used"`
	Filename     string                        `json:"filename"`
	ContentType  string                        `json:"content_type"`
	CreatedAt    time.Time                     `json:"created_at"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}
