package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini implements the Recognizer interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewGemini creates a new Gemini Recognizer instance
func NewGemini(apiKey string, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		timeout:   timeout,
	}, nil
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return "gemini"
}

// geminiResponse mirrors the layout of Gemini's REST response so Parse can read it
type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// Recognize sends the image and instruction and re-wraps the text parts of the
// first candidate as {"candidates": [{"content": {"parts": [...]}}]}
func (g *Gemini) Recognize(ctx context.Context, req RecognitionRequest) (RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.modelName)
	var parts []genai.Part
	if req.HasImage() {
		imageData, err := base64.StdEncoding.DecodeString(req.EncodedImage)
		if err != nil {
			return nil, &EncodingError{Reason: "decoding image payload", Err: err}
		}
		// genai.ImageData expects the format suffix ("png"), not the full MIME type
		format := strings.TrimPrefix(req.MimeType, "image/")
		parts = append(parts, genai.ImageData(format, imageData))
		model.SetTemperature(0.1)
	} else {
		model.SetTemperature(0.7)
	}
	parts = append(parts, genai.Text(req.InstructionText))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyGeminiError(ctx, err)
	}

	out := geminiResponse{}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		var content geminiContent
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content.Parts = append(content.Parts, geminiPart{Text: string(text)})
			}
		}
		out.Candidates = append(out.Candidates, geminiCandidate{Content: content})
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini response: %w", err)
	}
	return RawResponse(raw), nil
}

// classifyGeminiError maps SDK errors onto TransportError kinds
func classifyGeminiError(ctx context.Context, err error) error {
	var blockedErr *genai.BlockedError
	if errors.As(err, &blockedErr) {
		return &TransportError{Kind: KindBlocked, Err: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &TransportError{Kind: KindHTTPStatus, StatusCode: apiErr.Code, Body: truncate(apiErr.Message, maxErrorBody), Err: err}
	}
	return classifyTransportError(ctx, err)
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
