package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClassifierPicksTopLabel(t *testing.T) {
	var got pipelineRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/roberta-base-openai-detector", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[[{"label":"Real","score":0.12},{"label":"Fake","score":0.88}]]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL+"/", "roberta-base-openai-detector", "secret", 512, time.Second)
	label, err := c.Classify(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, "Fake", label.Label)
	assert.InDelta(t, 0.88, label.Score, 1e-9)
	assert.Equal(t, "some text", got.Inputs)
	assert.True(t, got.Parameters.Truncation)
	assert.Equal(t, 512, got.Parameters.MaxLength)
	assert.Equal(t, "roberta-base-openai-detector", c.ModelName())
}

func TestHTTPClassifierFlatResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"label":"Real","score":0.97}]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "m", "", 512, time.Second)
	label, err := c.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Real", label.Label)
}

func TestHTTPClassifierUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model is loading"}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "m", "", 512, time.Second)
	_, err := c.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model is loading")
}

func TestHTTPClassifierEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "m", "", 512, time.Second)
	_, err := c.Classify(context.Background(), "text")
	assert.Error(t, err)
}

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatClassifierParsesVerdict(t *testing.T) {
	cases := []struct {
		reply string
		label string
		score float64
	}{
		{`{"label":"Fake","score":0.93}`, "Fake", 0.93},
		{"```json\n{\"label\": \"real\", \"score\": 0.6}\n```", "Real", 0.6},
		{`Verdict: {"label":"AI-generated","score":1.4}`, "Fake", 1},
		{`{"label":"human","score":-0.2}`, "Real", 0},
	}
	for _, tc := range cases {
		fake := &fakeChatModel{reply: tc.reply}
		c := NewChatClassifier(fake, "gpt-test", 512)
		label, err := c.Classify(context.Background(), "hello world")
		require.NoError(t, err, tc.reply)
		assert.Equal(t, tc.label, label.Label, tc.reply)
		assert.InDelta(t, tc.score, label.Score, 1e-9, tc.reply)
	}
}

func TestChatClassifierRejectsGarbage(t *testing.T) {
	for _, reply := range []string{"I cannot tell", `{"label":"maybe","score":0.5}`, `{broken`} {
		c := NewChatClassifier(&fakeChatModel{reply: reply}, "gpt-test", 512)
		_, err := c.Classify(context.Background(), "text")
		assert.Error(t, err, reply)
	}
}

func TestChatClassifierPropagatesModelError(t *testing.T) {
	c := NewChatClassifier(&fakeChatModel{err: errors.New("quota exceeded")}, "gpt-test", 512)
	_, err := c.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestChatClassifierCapsTokens(t *testing.T) {
	fake := &fakeChatModel{reply: `{"label":"Real","score":0.5}`}
	c := NewChatClassifier(fake, "gpt-test", 3)
	_, err := c.Classify(context.Background(), "one two three four five")
	require.NoError(t, err)
	require.Len(t, fake.received, 2)
	assert.Equal(t, schema.System, fake.received[0].Role)
	assert.Equal(t, "one two three", fake.received[1].Content)
}

func TestCapTokens(t *testing.T) {
	assert.Equal(t, "a b", CapTokens("a b c", 2))
	assert.Equal(t, "a  b", CapTokens("a  b", 2))
	assert.Equal(t, "x", CapTokens("x", 0))
	assert.Equal(t, 512, len(strings.Fields(CapTokens(strings.Repeat("w ", 1000), 512))))
}
