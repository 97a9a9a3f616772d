package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Azure recognizes text with the Azure Computer Vision OCR API. It
// needs a subscription key plus the regional service endpoint, and
// reports no per-document confidence.
type Azure struct {
	key      string
	endpoint string
	client   *http.Client
}

// NewAzure creates an uninitialized Azure backend.
func NewAzure(cfg BackendConfig) *Azure {
	return &Azure{client: &http.Client{}}
}

// Initialize stores the subscription key and endpoint after a shape check.
func (a *Azure) Initialize(creds Credentials) bool {
	if creds.APIKey == "" || creds.Endpoint == "" {
		return false
	}
	u, err := url.Parse(creds.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	a.key = creds.APIKey
	a.endpoint = strings.TrimSuffix(creds.Endpoint, "/")
	return true
}

func (a *Azure) Validate(in Input) Validation {
	return validateInput(in, a.Describe())
}

// azureOCRResponse is the v3.2 OCR reply: nested regions, lines, words.
type azureOCRResponse struct {
	Language string `json:"language"`
	Regions  []struct {
		Lines []struct {
			Words []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"lines"`
	} `json:"regions"`
}

// Process posts the image to the synchronous OCR endpoint and
// reassembles the recognized words line by line.
func (a *Azure) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: err}
	}

	pngData, err := toPNG(data, in.ContentType)
	if err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: err}
	}

	lang := "unk"
	if opts.Language != "" {
		lang = opts.Language
	}
	reqURL := fmt.Sprintf("%s/vision/v3.2/ocr?language=%s&detectOrientation=%t",
		a.endpoint, url.QueryEscape(lang), opts.DetectOrientation)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(pngData))
	if err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProcessingError{
			Backend: a.Describe().Name,
			Err:     fmt.Errorf("azure OCR API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var ocr azureOCRResponse
	if err := json.Unmarshal(body, &ocr); err != nil {
		return nil, &ProcessingError{Backend: a.Describe().Name, Err: fmt.Errorf("decoding response: %w", err)}
	}

	var text strings.Builder
	for _, region := range ocr.Regions {
		for _, line := range region.Lines {
			words := make([]string, 0, len(line.Words))
			for _, w := range line.Words {
				words = append(words, w.Text)
			}
			text.WriteString(strings.Join(words, " "))
			text.WriteString("\n")
		}
	}

	return &Result{
		Text:       strings.TrimSpace(text.String()),
		Confidence: 0, // the v3.2 OCR endpoint reports none
		Metadata: ResultMetadata{
			Backend:   a.Describe().Name,
			Model:     "vision-v3.2-ocr",
			Filename:  in.Name(),
			ScannedAt: time.Now(),
		},
		RawPayload: body,
	}, nil
}

func (a *Azure) Describe() Descriptor {
	return Descriptor{
		Name:                "azure",
		Kind:                KindCloud,
		RequiresCredentials: true,
		CredentialShape:     CredentialKeyEndpoint,
		SupportsConfidence:  false,
		MaxInputBytes:       4 << 20, // Azure OCR request limit
		SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".heic", ".heif"},
		SupportedLanguages:  []string{"de", "en", "fr", "es", "it"},
	}
}
