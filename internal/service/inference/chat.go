package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"detectorgo/internal/models"
)

const chatInstruction = `You are a detector of machine-generated text.
Decide whether the user's text was written by a human ("Real") or generated by a language model ("Fake").
Reply with a single JSON object and nothing else: {"label": "Real" | "Fake", "score": <confidence between 0 and 1>}.`

// ChatClassifier asks a general chat model for a Real/Fake verdict.
type ChatClassifier struct {
	model     model.BaseChatModel
	name      string
	maxTokens int
}

func NewChatClassifier(chatModel model.BaseChatModel, name string, maxTokens int) *ChatClassifier {
	return &ChatClassifier{model: chatModel, name: name, maxTokens: maxTokens}
}

func (c *ChatClassifier) ModelName() string {
	return c.name
}

func (c *ChatClassifier) Classify(ctx context.Context, text string) (models.Label, error) {
	messages := []*schema.Message{
		schema.SystemMessage(chatInstruction),
		schema.UserMessage(CapTokens(text, c.maxTokens)),
	}
	reply, err := c.model.Generate(ctx, messages)
	if err != nil {
		return models.Label{}, fmt.Errorf("generate verdict: %w", err)
	}
	if reply == nil {
		return models.Label{}, errors.New("chat model returned no message")
	}
	return parseVerdict(reply.Content)
}

func parseVerdict(content string) (models.Label, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return models.Label{}, fmt.Errorf("chat model reply has no verdict: %q", content)
	}
	var verdict struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return models.Label{}, fmt.Errorf("decode verdict: %w", err)
	}

	var label string
	switch strings.ToLower(strings.TrimSpace(verdict.Label)) {
	case "real", "human", "human-written":
		label = "Real"
	case "fake", "ai", "machine", "ai-generated", "machine-generated":
		label = "Fake"
	default:
		return models.Label{}, fmt.Errorf("unknown verdict label %q", verdict.Label)
	}

	score := verdict.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return models.Label{Label: label, Score: score}, nil
}
