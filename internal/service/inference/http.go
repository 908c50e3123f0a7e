package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"detectorgo/internal/models"
)

// HTTPClassifier calls a hosted text-classification pipeline that speaks the
// Hugging Face inference protocol: POST {base}/models/{model} with
// {"inputs": text}.
type HTTPClassifier struct {
	baseURL    string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

func NewHTTPClassifier(baseURL, model, apiKey string, maxTokens int, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClassifier) ModelName() string {
	return c.model
}

type pipelineRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters pipelineParameters `json:"parameters"`
}

type pipelineParameters struct {
	Truncation bool `json:"truncation"`
	MaxLength  int  `json:"max_length,omitempty"`
}

// Classify returns the highest scoring label for text.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (models.Label, error) {
	body, err := json.Marshal(pipelineRequest{
		Inputs:     text,
		Parameters: pipelineParameters{Truncation: true, MaxLength: c.maxTokens},
	})
	if err != nil {
		return models.Label{}, fmt.Errorf("marshal inference request: %w", err)
	}

	path := "/models/" + url.PathEscape(c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return models.Label{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Label{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResp(resp, "inference", path); err != nil {
		return models.Label{}, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Label{}, fmt.Errorf("read inference response: %w", err)
	}
	labels, err := decodeLabels(raw)
	if err != nil {
		return models.Label{}, err
	}
	return topLabel(labels)
}

// decodeLabels accepts both [{label,score}] and [[{label,score}]].
func decodeLabels(raw []byte) ([]models.Label, error) {
	var nested [][]models.Label
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("inference returned no labels")
		}
		return nested[0], nil
	}
	var flat []models.Label
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return flat, nil
}

func topLabel(labels []models.Label) (models.Label, error) {
	if len(labels) == 0 {
		return models.Label{}, errors.New("inference returned no labels")
	}
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	if best.Label == "" {
		return models.Label{}, errors.New("inference returned an empty label")
	}
	return best, nil
}

func checkResp(resp *http.Response, service, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s %s returned %d: %s", service, path, resp.StatusCode, strings.TrimSpace(string(body)))
}
