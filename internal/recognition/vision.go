package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"time"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// Vision recognizes text with the Google Cloud Vision document text
// API. It authenticates with a service account key file, falling back
// to ambient application default credentials when the file is absent.
type Vision struct {
	svc *vision.Service
}

// NewVision creates an uninitialized Cloud Vision backend.
func NewVision(cfg BackendConfig) *Vision {
	return &Vision{}
}

// Initialize constructs the Vision service from the key file, or from
// ambient credentials when no readable key file was supplied.
func (v *Vision) Initialize(creds Credentials) bool {
	opts := []option.ClientOption{option.WithScopes(vision.CloudPlatformScope)}
	if creds.KeyFile != "" {
		if _, err := os.Stat(creds.KeyFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(creds.KeyFile))
		}
	}

	svc, err := vision.NewService(context.Background(), opts...)
	if err != nil {
		return false
	}
	v.svc = svc
	return true
}

func (v *Vision) Validate(in Input) Validation {
	return validateInput(in, v.Describe())
}

// Process runs DOCUMENT_TEXT_DETECTION and averages the per-page
// confidence the API reports.
func (v *Vision) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, &ProcessingError{Backend: v.Describe().Name, Err: err}
	}

	pngData, err := toPNG(data, in.ContentType)
	if err != nil {
		return nil, &ProcessingError{Backend: v.Describe().Name, Err: err}
	}

	req := &vision.AnnotateImageRequest{
		Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(pngData)},
		Features: []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}
	if opts.Language != "" {
		req.ImageContext = &vision.ImageContext{LanguageHints: []string{opts.Language}}
	}

	batch, err := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return nil, &ProcessingError{Backend: v.Describe().Name, Err: err}
	}
	if len(batch.Responses) == 0 {
		return nil, &ProcessingError{Backend: v.Describe().Name, Err: errEmptyResponse}
	}

	resp := batch.Responses[0]
	if resp.Error != nil {
		return nil, &ProcessingError{Backend: v.Describe().Name, Err: &apiStatusError{Code: resp.Error.Code, Message: resp.Error.Message}}
	}

	raw, _ := json.Marshal(resp)
	result := &Result{
		Metadata: ResultMetadata{
			Backend:   v.Describe().Name,
			Model:     "document-text-detection",
			Filename:  in.Name(),
			ScannedAt: time.Now(),
		},
		RawPayload: raw,
	}

	// No annotation means the API ran but found no text.
	if resp.FullTextAnnotation == nil {
		return result, nil
	}

	result.Text = resp.FullTextAnnotation.Text
	var sum float64
	var n int
	for _, page := range resp.FullTextAnnotation.Pages {
		if page.Confidence > 0 {
			sum += page.Confidence
			n++
		}
	}
	if n > 0 {
		result.Confidence = sum / float64(n)
	}
	return result, nil
}

func (v *Vision) Describe() Descriptor {
	return Descriptor{
		Name:                "vision",
		Kind:                KindCloud,
		RequiresCredentials: true,
		CredentialShape:     CredentialKeyFile,
		SupportsConfidence:  true,
		MaxInputBytes:       20 << 20, // Vision API request limit
		SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".heic", ".heif"},
		SupportedLanguages:  []string{"de", "en", "fr", "es", "it"},
	}
}
