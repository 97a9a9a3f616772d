package recognition

import (
	"context"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with a locally installed Tesseract engine
// via gosseract. It needs no credentials and reports a real confidence
// averaged over recognized words.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract backend for the configured languages.
func NewTesseract(cfg BackendConfig) *Tesseract {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"deu", "eng"}
	}
	return &Tesseract{languages: languages}
}

// Initialize is a no-op; the local engine needs no credentials.
func (t *Tesseract) Initialize(creds Credentials) bool { return true }

func (t *Tesseract) Validate(in Input) Validation {
	return validateInput(in, t.Describe())
}

// Process runs the engine on a fresh client. The client is request
// scoped so the backend itself stays reusable across images.
func (t *Tesseract) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, &ProcessingError{Backend: t.Describe().Name, Err: err}
	}

	pngData, err := toPNG(data, in.ContentType)
	if err != nil {
		return nil, &ProcessingError{Backend: t.Describe().Name, Err: err}
	}

	client := gosseract.NewClient()
	defer client.Close()

	languages := t.languages
	if opts.Language != "" {
		languages = []string{opts.Language}
	}
	if err := client.SetLanguage(languages...); err != nil {
		return nil, &ProcessingError{Backend: t.Describe().Name, Err: err}
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return nil, &ProcessingError{Backend: t.Describe().Name, Err: err}
	}

	text, err := client.Text()
	if err != nil {
		return nil, &ProcessingError{Backend: t.Describe().Name, Err: err}
	}

	// Mean word confidence, scaled from Tesseract's 0..100 range.
	var confidence float64
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		for _, box := range boxes {
			sum += box.Confidence
		}
		confidence = sum / float64(len(boxes)) / 100
	}

	return &Result{
		Text:       strings.TrimSpace(text),
		Confidence: confidence,
		Metadata: ResultMetadata{
			Backend:   t.Describe().Name,
			Model:     "tesseract/" + strings.Join(languages, "+"),
			Filename:  in.Name(),
			ScannedAt: time.Now(),
		},
	}, nil
}

func (t *Tesseract) Describe() Descriptor {
	return Descriptor{
		Name:                "tesseract",
		Kind:                KindLocal,
		RequiresCredentials: false,
		CredentialShape:     CredentialNone,
		SupportsConfidence:  true,
		MaxInputBytes:       50 << 20,
		SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".heic", ".heif"},
		SupportedLanguages:  []string{"deu", "eng", "fra", "spa", "ita"},
	}
}
