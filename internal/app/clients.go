package app

import (
	"context"
	"errors"

	"github.com/yungbote/upcycleai/internal/platform/gemini"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// wireGemini builds the backend client. Without an API key the process still starts:
// profile and collection commands work, and every generative call fails with
// gemini.ErrMissingAPIKey.
func wireGemini(log *logger.Logger, cfg Config) (gemini.Client, error) {
	log.Info("Wiring gemini client...")
	c, err := gemini.NewClient(log, gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Timeout:    cfg.GeminiTimeout,
		MaxRetries: cfg.GeminiMaxRetries,
	})
	if errors.Is(err, gemini.ErrMissingAPIKey) {
		log.Warn("GEMINI_API_KEY not set; generative features are unavailable")
		return unavailableClient{}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

type unavailableClient struct{}

func (unavailableClient) GenerateJSON(context.Context, gemini.JSONRequest) (string, error) {
	return "", gemini.ErrMissingAPIKey
}

func (unavailableClient) GenerateText(context.Context, string, string) (string, error) {
	return "", gemini.ErrMissingAPIKey
}

func (unavailableClient) GenerateImage(context.Context, gemini.ImageRequest) (gemini.Blob, error) {
	return gemini.Blob{}, gemini.ErrMissingAPIKey
}

func (unavailableClient) GenerateSpeech(context.Context, gemini.SpeechRequest) (gemini.Blob, error) {
	return gemini.Blob{}, gemini.ErrMissingAPIKey
}

func (unavailableClient) GenerateGrounded(context.Context, string, string) (gemini.Grounded, error) {
	return gemini.Grounded{}, gemini.ErrMissingAPIKey
}
