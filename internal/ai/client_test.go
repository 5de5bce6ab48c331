package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-atis/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClient(Config{
		APIKey:         "sk-test",
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, logger.NewNop())
}

func TestTranscribeUploadsAudio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "atis_RCTP.mp3", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake-mp3", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"TAOYUAN ATIS INFO X"}`))
	})

	text, err := client.Transcribe(context.Background(), TranscriptionRequest{
		Audio:    strings.NewReader("fake-mp3"),
		FileName: "atis_RCTP.mp3",
		Model:    "whisper-1",
		Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "TAOYUAN ATIS INFO X", text)
}

func TestCompleteJSONRequestsJSONMode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		format, _ := body["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])
		messages, _ := body["messages"].([]any)
		assert.Len(t, messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"info_code\":\"X\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	content, err := client.CompleteJSON(context.Background(), CompletionRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "extract",
		UserPrompt:   "TAOYUAN ATIS INFO X",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"info_code":"X"}`, content)
}

func TestCompleteJSONEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	})

	_, err := client.CompleteJSON(context.Background(), CompletionRequest{Model: "m", UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateImageDecodesBase64(t *testing.T) {
	png := []byte("\x89PNG fake")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dall-e-3", body["model"])
		assert.Equal(t, "b64_json", body["response_format"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	})

	data, err := client.GenerateImage(context.Background(), ImageRequest{Model: "dall-e-3", Prompt: "wind 270/10", Size: "1024x1024"})
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrServiceUnavailable},
		{"server error", http.StatusServiceUnavailable, ErrServiceUnavailable},
		{"bad key", http.StatusUnauthorized, ErrServiceRejected},
		{"bad request", http.StatusBadRequest, ErrServiceRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test","code":"x"}}`))
			})

			_, err := client.CompleteJSON(context.Background(), CompletionRequest{Model: "m", UserPrompt: "hi"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnconfiguredClientFailsFast(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer server.Close()

	client := NewOpenAIClient(Config{BaseURL: server.URL}, logger.NewNop())
	assert.False(t, client.Configured())

	_, err := client.Transcribe(context.Background(), TranscriptionRequest{Audio: strings.NewReader("x"), FileName: "a.mp3", Model: "whisper-1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.CompleteJSON(context.Background(), CompletionRequest{Model: "m", UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.GenerateImage(context.Background(), ImageRequest{Model: "dall-e-3", Prompt: "p"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, calls)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", contentTypeFor("atis.mp3"))
	assert.Equal(t, "audio/wav", contentTypeFor("atis.wav"))
	assert.Equal(t, "audio/aac", contentTypeFor("atis.aac"))
}
