package advice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIGenerator(Options{
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		BaseURL: srv.URL + "/v1",
		Timeout: 2 * time.Second,
	})
}

func TestGenerateSendsPromptAndTrimsReply(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 150, req.MaxTokens)
		assert.InDelta(t, 0.3, req.Temperature, 1e-6)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "table", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Arrosez les tomates.\n"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	})

	text, err := g.Generate(context.Background(), Request{System: "sys", User: "table", Temperature: 0.3, MaxTokens: 150})
	require.NoError(t, err)
	assert.Equal(t, "Arrosez les tomates.", text)
}

func TestGenerateMissingKey(t *testing.T) {
	g := NewOpenAIGenerator(Options{})
	_, err := g.Generate(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrCredentialMissing)
}

func TestGenerateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "bad key",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   ErrBadCredential,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"overloaded","type":"server_error"}}`,
			want:   ErrUnavailable,
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"c1","object":"chat.completion","choices":[]}`,
			want:   ErrUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := g.Generate(context.Background(), Request{User: "x"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 50 * time.Millisecond})
	_, err := g.Generate(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
