package recognition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies where a backend runs.
type Kind string

const (
	KindCloud Kind = "cloud"
	KindLocal Kind = "local"
)

// CredentialShape names the credential layout a backend expects.
type CredentialShape string

const (
	CredentialNone        CredentialShape = "none"
	CredentialAPIKey      CredentialShape = "api-key"
	CredentialKeyEndpoint CredentialShape = "key+endpoint"
	CredentialKeyFile     CredentialShape = "keyfile"
)

// Credentials carries every credential field any backend may need.
// Each backend reads only the fields its shape declares.
type Credentials struct {
	APIKey   string
	Endpoint string
	KeyFile  string
}

// Input is one image handed to a backend, either as a path on disk or
// an in-memory buffer. Filename and ContentType travel alongside for
// format checks and image normalization.
type Input struct {
	Path        string
	Data        []byte
	Filename    string
	ContentType string
}

// Name returns the best available filename for the input.
func (in Input) Name() string {
	if in.Filename != "" {
		return in.Filename
	}
	return filepath.Base(in.Path)
}

// Bytes returns the image data, reading from disk when the input is a path.
func (in Input) Bytes() ([]byte, error) {
	if in.Data != nil {
		return in.Data, nil
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return data, nil
}

// Options are per-call hints. Backends honor only what their engine supports.
type Options struct {
	// Language is a recognition language hint, e.g. "de" or "en".
	Language string
	// Model overrides the backend's configured model or engine variant.
	Model string
	// DetectOrientation asks the backend to auto-rotate, where supported.
	DetectOrientation bool
}

// Result is the outcome of one successful recognition attempt.
type Result struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"` // 0 when the backend reports none
	Metadata   ResultMetadata `json:"metadata"`
	RawPayload []byte         `json:"-"` // provider response, diagnostics only
}

// ResultMetadata records where and when a result came from.
type ResultMetadata struct {
	Backend   string    `json:"backend"`
	Model     string    `json:"model"`
	Filename  string    `json:"filename"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Validation is the outcome of a pre-flight input check.
type Validation struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	FileSize   int64  `json:"file_size"`
	FileFormat string `json:"file_format"`
}

// Descriptor is a backend's static capability report.
type Descriptor struct {
	Name                string          `json:"name"`
	Kind                Kind            `json:"kind"`
	RequiresCredentials bool            `json:"requires_credentials"`
	CredentialShape     CredentialShape `json:"credential_shape"`
	SupportsConfidence  bool            `json:"supports_confidence"`
	MaxInputBytes       int64           `json:"max_input_bytes"`
	SupportedFormats    []string        `json:"supported_formats"`
	SupportedLanguages  []string        `json:"supported_languages"`
}

// SupportsFormat reports whether the extension (with or without a
// leading dot, any case) is accepted by the backend.
func (d Descriptor) SupportsFormat(ext string) bool {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, f := range d.SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// Backend is the uniform contract every text-recognition engine
// implements. Instances are constructed once by the Registry and must
// be safe to reuse across images; Process keeps all mutable state in
// request-scoped locals.
type Backend interface {
	// Initialize validates and stores credentials. It returns false,
	// never an error, on malformed or missing credentials. Backends
	// that need no credentials treat this as a no-op returning true.
	Initialize(creds Credentials) bool

	// Validate checks the input against the backend's limits before
	// any network or compute cost is incurred. It never invokes the
	// recognition engine itself.
	Validate(in Input) Validation

	// Process performs recognition. A backend that ran successfully
	// but found no text returns an empty Result with confidence 0,
	// not an error.
	Process(ctx context.Context, in Input, opts Options) (*Result, error)

	// Describe reports the backend's static capabilities.
	Describe() Descriptor
}

// validateInput is the shared pre-flight check used by every backend's
// Validate: existence and readability for path inputs, size against
// MaxInputBytes, extension against SupportedFormats.
func validateInput(in Input, d Descriptor) Validation {
	var size int64
	if in.Data != nil {
		size = int64(len(in.Data))
	} else {
		info, err := os.Stat(in.Path)
		if err != nil {
			return Validation{Valid: false, Reason: fmt.Sprintf("file not readable: %v", err)}
		}
		if info.IsDir() {
			return Validation{Valid: false, Reason: fmt.Sprintf("not a file: %s", in.Path)}
		}
		size = info.Size()
	}

	ext := strings.ToLower(filepath.Ext(in.Name()))
	v := Validation{FileSize: size, FileFormat: ext}

	if size == 0 {
		v.Reason = "file is empty"
		return v
	}
	if d.MaxInputBytes > 0 && size > d.MaxInputBytes {
		v.Reason = fmt.Sprintf("file size %d exceeds limit of %d bytes", size, d.MaxInputBytes)
		return v
	}
	if ext == "" {
		v.Reason = "file has no extension"
		return v
	}
	if !d.SupportsFormat(ext) {
		v.Reason = fmt.Sprintf("unsupported format %q (supported: %s)", ext, strings.Join(d.SupportedFormats, ", "))
		return v
	}

	v.Valid = true
	return v
}

// transcriptionPrompt is shared by the LLM-backed engines (Gemini,
// Ollama). Temperature-zero transcription, no interpretation.
const transcriptionPrompt = `You are performing OCR on a photographed retail receipt.

Transcribe ALL visible text from the image exactly as it appears, preserving:
- Line breaks and the top-to-bottom order of lines
- Capitalization, punctuation and special characters
- Numbers, prices and currency symbols exactly as printed

INSTRUCTIONS:
1. Read the receipt carefully from top to bottom
2. Transcribe every piece of visible text, including headers, item lines, totals, tax and payment details
3. Do not add any interpretation, commentary, or explanations
4. Do not translate; keep the original language
5. If text is partially obscured, transcribe what you can see and use [?] for illegible portions

OUTPUT FORMAT:
Provide ONLY the transcribed text. Do not include phrases like "Here is the text:".
Start immediately with the first line of the receipt.`
