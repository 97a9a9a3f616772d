package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama recognizes text with a locally hosted vision model via the
// Ollama chat API. It needs no credentials.
//
// Recommended models, in order of accuracy for receipts:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama backend pointed at the configured host.
func NewOllama(cfg BackendConfig) *Ollama {
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llava"
	}
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

// Initialize is a no-op; the local engine needs no credentials.
func (o *Ollama) Initialize(creds Credentials) bool { return true }

func (o *Ollama) Validate(in Input) Validation {
	return validateInput(in, o.Describe())
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Process sends the image with a transcription prompt to the chat API.
func (o *Ollama) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: err}
	}

	pngData, err := toPNG(data, in.ContentType)
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: err}
	}

	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	prompt := transcriptionPrompt
	if opts.Language != "" {
		prompt += "\nThe receipt language is most likely: " + opts.Language + "."
	}

	reqBody := ollamaChatRequest{
		Model:  model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading text in photographed receipts. You transcribe exactly what is printed, without interpretation.",
			},
			{
				Role:    "user",
				Content: prompt,
			},
		},
		Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
		Options: map[string]any{"temperature": 0.0},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProcessingError{
			Backend: o.Describe().Name,
			Err:     fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &ProcessingError{Backend: o.Describe().Name, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return &Result{
		Text:       strings.TrimSpace(chatResp.Message.Content),
		Confidence: 0, // not reported by the model
		Metadata: ResultMetadata{
			Backend:   o.Describe().Name,
			Model:     model,
			Filename:  in.Name(),
			ScannedAt: time.Now(),
		},
		RawPayload: body,
	}, nil
}

func (o *Ollama) Describe() Descriptor {
	return Descriptor{
		Name:                "ollama",
		Kind:                KindLocal,
		RequiresCredentials: false,
		CredentialShape:     CredentialNone,
		SupportsConfidence:  false,
		MaxInputBytes:       50 << 20,
		SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".heic", ".heif"},
		SupportedLanguages:  []string{"de", "en", "fr", "es", "it"},
	}
}
