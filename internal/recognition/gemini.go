package recognition

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini recognizes text with Google Gemini's vision models. It is an
// LLM transcriber, so it reports no confidence of its own.
type Gemini struct {
	modelName string
	client    *genai.Client
	model     *genai.GenerativeModel
}

// NewGemini creates an uninitialized Gemini backend.
func NewGemini(cfg BackendConfig) *Gemini {
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	return &Gemini{modelName: modelName}
}

// Initialize stores the API key and constructs the client.
func (g *Gemini) Initialize(creds Credentials) bool {
	if creds.APIKey == "" {
		return false
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(creds.APIKey))
	if err != nil {
		return false
	}
	model := client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	g.client = client
	g.model = model
	return true
}

func (g *Gemini) Validate(in Input) Validation {
	return validateInput(in, g.Describe())
}

// Process sends the image with a transcription prompt and returns the
// raw transcript.
func (g *Gemini) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, &ProcessingError{Backend: g.Describe().Name, Err: err}
	}

	pngData, err := toPNG(data, in.ContentType)
	if err != nil {
		return nil, &ProcessingError{Backend: g.Describe().Name, Err: err}
	}

	model := g.model
	if opts.Model != "" && opts.Model != g.modelName {
		model = g.client.GenerativeModel(opts.Model)
		model.SetTemperature(0)
	}

	prompt := transcriptionPrompt
	if opts.Language != "" {
		prompt += "\nThe receipt language is most likely: " + opts.Language + "."
	}

	resp, err := model.GenerateContent(ctx,
		genai.ImageData("png", pngData),
		genai.Text(prompt),
	)
	if err != nil {
		return nil, &ProcessingError{Backend: g.Describe().Name, Err: err}
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	raw, _ := json.Marshal(resp)

	return &Result{
		Text:       strings.TrimSpace(text.String()),
		Confidence: 0, // not reported by the model
		Metadata: ResultMetadata{
			Backend:   g.Describe().Name,
			Model:     g.modelName,
			Filename:  in.Name(),
			ScannedAt: time.Now(),
		},
		RawPayload: raw,
	}, nil
}

func (g *Gemini) Describe() Descriptor {
	return Descriptor{
		Name:                "gemini",
		Kind:                KindCloud,
		RequiresCredentials: true,
		CredentialShape:     CredentialAPIKey,
		SupportsConfidence:  false,
		MaxInputBytes:       50 << 20,
		SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".heic", ".heif"},
		SupportedLanguages:  []string{"de", "en", "fr", "es", "it"},
	}
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
