package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// Blob is a decoded inline payload.
type Blob struct {
	MimeType string
	Data     []byte
}

type JSONRequest struct {
	Model       string
	Prompt      string
	Images      []Blob
	Schema      map[string]any
	Temperature *float64
}

type ImageRequest struct {
	Model  string
	Prompt string
	// Config is omitted from the request when nil.
	Config *ImageConfig
}

type SpeechRequest struct {
	Model string
	Text  string
	Voice string
}

// Grounded is a search-grounded answer: the model text plus the web sources it cited.
type Grounded struct {
	Text    string
	Sources []WebSource
}

// Client is the Gemini generateContent client used by the analysis gateway.
type Client interface {
	// Structured output: returns the raw JSON text produced under Schema.
	GenerateJSON(ctx context.Context, req JSONRequest) (string, error)

	// Plain text from a single prompt.
	GenerateText(ctx context.Context, model string, prompt string) (string, error)

	// First inline image of the response.
	GenerateImage(ctx context.Context, req ImageRequest) (Blob, error)

	// Raw PCM audio (the API returns 24 kHz mono s16le).
	GenerateSpeech(ctx context.Context, req SpeechRequest) (Blob, error)

	// Text answer with the googleSearch tool enabled.
	GenerateGrounded(ctx context.Context, model string, prompt string) (Grounded, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

type client struct {
	log  *logger.Logger
	http *resty.Client
}

const generatePath = "/v1beta/models/{model}:generateContent"

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", apiKey).
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(10 * wait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return IsRetryableError(err)
			}
			return r != nil && IsRetryableHTTPStatus(r.StatusCode())
		})

	return &client{log: log.With("client", "gemini"), http: rc}, nil
}

func (c *client) generate(ctx context.Context, model string, body *generateRequest) (*generateResponse, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini: model required")
	}
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", model).
		SetBody(body).
		Post(generatePath)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp.IsError() {
		herr := &HTTPError{StatusCode: resp.StatusCode(), Message: resp.String()}
		var ae apiErrorBody
		if json.Unmarshal(resp.Body(), &ae) == nil && ae.Error.Message != "" {
			herr.Message = ae.Error.Message
			herr.Status = ae.Error.Status
		}
		c.log.Warn("gemini request failed",
			"model", model,
			"status", resp.StatusCode(),
			"attempts", resp.Request.Attempt,
			"duration", time.Since(start).String(),
		)
		return nil, herr
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("gemini decode error: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	c.log.Debug("gemini request done", "model", model, "duration", time.Since(start).String())
	return &out, nil
}

func textContent(prompt string) []Content {
	return []Content{{Role: "user", Parts: []Part{{Text: prompt}}}}
}

func (c *client) GenerateJSON(ctx context.Context, req JSONRequest) (string, error) {
	if req.Schema == nil {
		return "", fmt.Errorf("gemini: schema required")
	}
	parts := make([]Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, Part{InlineData: &InlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}
	parts = append(parts, Part{Text: req.Prompt})

	body := &generateRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			Temperature:      req.Temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		},
	}
	out, err := c.generate(ctx, req.Model, body)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.text())
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

func (c *client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	out, err := c.generate(ctx, model, &generateRequest{Contents: textContent(prompt)})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.text())
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

func (c *client) GenerateImage(ctx context.Context, req ImageRequest) (Blob, error) {
	body := &generateRequest{Contents: textContent(req.Prompt)}
	if req.Config != nil {
		body.GenerationConfig = &generationConfig{ImageConfig: req.Config}
	}
	out, err := c.generate(ctx, req.Model, body)
	if err != nil {
		return Blob{}, err
	}
	return decodeInline(out.inline())
}

func (c *client) GenerateSpeech(ctx context.Context, req SpeechRequest) (Blob, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Blob{}, fmt.Errorf("gemini: empty text for speech")
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	body := &generateRequest{
		Contents: []Content{{Parts: []Part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
			},
		},
	}
	out, err := c.generate(ctx, req.Model, body)
	if err != nil {
		return Blob{}, err
	}
	return decodeInline(out.inline())
}

func (c *client) GenerateGrounded(ctx context.Context, model string, prompt string) (Grounded, error) {
	body := &generateRequest{
		Contents: textContent(prompt),
		Tools:    []tool{{GoogleSearch: &googleSearch{}}},
	}
	out, err := c.generate(ctx, model, body)
	if err != nil {
		return Grounded{}, err
	}
	g := Grounded{Text: strings.TrimSpace(out.text())}
	if md := out.Candidates[0].GroundingMetadata; md != nil {
		for _, ch := range md.GroundingChunks {
			if ch.Web != nil {
				g.Sources = append(g.Sources, *ch.Web)
			}
		}
	}
	return g, nil
}

func decodeInline(in *InlineData) (Blob, error) {
	if in == nil {
		return Blob{}, ErrNoInlineData
	}
	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return Blob{}, fmt.Errorf("gemini: decode inline data: %w", err)
	}
	if len(data) == 0 {
		return Blob{}, ErrNoInlineData
	}
	return Blob{MimeType: in.MimeType, Data: data}, nil
}
