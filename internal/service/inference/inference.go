// Package inference adapts external text-classification models to a single
// Classify call returning the model's top label.
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"detectorgo/internal/config"
	"detectorgo/internal/models"
)

// Classifier labels a piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Label, error)
	ModelName() string
}

// New builds the classifier selected by cfg.Backend.
func New(ctx context.Context, cfg config.InferenceConfig) (Classifier, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.Backend == "" || cfg.Backend == "http" {
		return NewHTTPClassifier(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.MaxTokens, timeout), nil
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Backend {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: timeout,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 256,
		})
	default:
		return nil, fmt.Errorf("invalid inference backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Backend, err)
	}
	return NewChatClassifier(chatModel, cfg.Model, cfg.MaxTokens), nil
}

// CapTokens keeps the first n whitespace separated tokens of text.
func CapTokens(text string, n int) string {
	if n <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= n {
		return text
	}
	return strings.Join(fields[:n], " ")
}
