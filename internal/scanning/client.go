package scanning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"
)

// Default timeouts for image-bearing and text-only requests
const (
	DefaultImageTimeout = 60 * time.Second
	DefaultTextTimeout  = 30 * time.Second
)

// maxErrorBody limits how much of a failed response is kept for diagnostics
const maxErrorBody = 512

// chatMessage is a single chat-completion message
type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

// contentPart is a text or image_url content block
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatRequest is the body sent to an OpenAI-compatible chat-completions endpoint
type chatRequest struct {
	Model        string        `json:"model"`
	Messages     []chatMessage `json:"messages"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	ResultFormat string        `json:"result_format,omitempty"`
}

// ClientConfig holds the settings for an OpenAI-compatible provider
type ClientConfig struct {
	Name         string
	BaseURL      string
	APIKey       string
	Model        string
	ImageTimeout time.Duration
	TextTimeout  time.Duration
}

// Client implements the Recognizer interface against an OpenAI-compatible
// chat-completions endpoint (DashScope compatible mode, OpenAI, ...)
type Client struct {
	config ClientConfig
	http   *http.Client
}

// NewClient creates a new Client. An empty API key is allowed; the provider
// will reject the call and the failure surfaces as a TransportError.
func NewClient(config ClientConfig) *Client {
	if config.Name == "" {
		config.Name = "openai-compatible"
	}
	if config.ImageTimeout <= 0 {
		config.ImageTimeout = DefaultImageTimeout
	}
	if config.TextTimeout <= 0 {
		config.TextTimeout = DefaultTextTimeout
	}
	return &Client{
		config: config,
		// Timeouts are applied per request through the context
		http: &http.Client{},
	}
}

// Name returns the configured provider name
func (c *Client) Name() string {
	return c.config.Name
}

// Close is a no-op for the HTTP client
func (c *Client) Close() error {
	return nil
}

// buildBody picks sampling controls depending on whether the request carries an image
func (c *Client) buildBody(req RecognitionRequest) chatRequest {
	body := chatRequest{Model: c.config.Model}
	if req.HasImage() {
		body.Messages = []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: req.DataURL()}},
				{Type: "text", Text: req.InstructionText},
			},
		}}
		body.Temperature = 0.1
		body.MaxTokens = 500
		body.ResultFormat = "text"
		return body
	}

	body.Messages = []chatMessage{{
		Role:    "user",
		Content: []contentPart{{Type: "text", Text: req.InstructionText}},
	}}
	body.Temperature = 0.7
	body.MaxTokens = 200
	return body
}

// Recognize posts the request and returns the raw response body
func (c *Client) Recognize(ctx context.Context, req RecognitionRequest) (RawResponse, error) {
	timeout := c.config.TextTimeout
	if req.HasImage() {
		timeout = c.config.ImageTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jsonData, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	slog.Debug("Calling provider",
		"provider", c.config.Name,
		"model", c.config.Model,
		"has_image", req.HasImage(),
		"bytes", len(jsonData),
		"timeout", timeout,
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}

	return RawResponse(body), nil
}

// classifyTransportError maps a failed round trip onto a TransportError kind
func classifyTransportError(ctx context.Context, err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	if isTLSError(err) {
		return &TransportError{Kind: KindTLS, Err: err}
	}
	return &TransportError{Kind: KindNetwork, Err: err}
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
		alertErr    tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &alertErr)
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
