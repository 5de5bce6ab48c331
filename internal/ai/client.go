package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/yegors/co-atis/pkg/logger"
)

var (
	// ErrNotConfigured is returned when no API key is set
	ErrNotConfigured = errors.New("AI service credentials are not configured")
	// ErrServiceUnavailable covers network failures, rate limiting and 5xx
	// replies. These are the only failures worth one retry.
	ErrServiceUnavailable = errors.New("AI service unavailable")
	// ErrServiceRejected covers requests the service refused (4xx other
	// than 429)
	ErrServiceRejected = errors.New("AI service rejected the request")
	// ErrEmptyResponse is returned when the service replies without content
	ErrEmptyResponse = errors.New("AI service returned an empty response")
)

// Config configures the OpenAI client
type Config struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	// MaxRetries is the SDK-internal retry count. The pipeline applies its
	// own stage retry policy, so this defaults to zero.
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIClient wraps the OpenAI SDK for the three calls the pipeline makes
type OpenAIClient struct {
	client     openai.Client
	httpClient *http.Client
	configured bool
	logger     *logger.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config Config, logger *logger.Logger) *OpenAIClient {
	if config.APIKey == "" {
		logger.Warn("OpenAI API key is empty - ATIS processing will fail until it is configured")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		baseURL := config.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if config.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.RequestTimeout))
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		httpClient: httpClient,
		configured: config.APIKey != "",
		logger:     logger.Named("openai-client"),
	}
}

// Configured reports whether an API key is set
func (c *OpenAIClient) Configured() bool {
	return c.configured
}

// TranscriptionRequest describes an audio upload
type TranscriptionRequest struct {
	Audio    io.Reader
	FileName string
	Model    string
	Language string
	Prompt   string
}

// Transcribe uploads audio and returns the recognised text
func (c *OpenAIClient) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(req.Audio, req.FileName, contentTypeFor(req.FileName)),
		Model: openai.AudioModel(req.Model),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}

	start := time.Now()
	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classify("transcription", err)
	}

	c.logger.Debug("Transcription call finished",
		logger.String("model", req.Model),
		logger.Int("chars", len(resp.Text)),
		logger.Duration("duration", time.Since(start)))

	return resp.Text, nil
}

// CompletionRequest describes a JSON-mode chat completion
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
}

// CompleteJSON runs a chat completion constrained to a JSON object reply
// and returns the raw message content
func (c *OpenAIClient) CompleteJSON(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify("chat completion", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Chat completion finished",
		logger.String("model", req.Model),
		logger.Int64("total_tokens", resp.Usage.TotalTokens),
		logger.Duration("duration", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// ImageRequest describes an image generation call
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
}

// GenerateImage renders one image and returns its encoded bytes
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
		N:      openai.Int(1),
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	// gpt-image models always answer with base64 and reject the parameter
	if strings.HasPrefix(req.Model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	start := time.Now()
	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, classify("image generation", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	image := resp.Data[0]
	var data []byte
	switch {
	case image.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(image.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
	case image.URL != "":
		data, err = c.download(ctx, image.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("Image generation finished",
		logger.String("model", req.Model),
		logger.Int("bytes", len(data)),
		logger.Duration("duration", time.Since(start)))

	return data, nil
}

// download fetches an image the service returned by URL
func (c *OpenAIClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: image download: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image download returned status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: image download: %v", ErrServiceUnavailable, err)
	}
	return data, nil
}

// classify maps SDK and transport errors onto the package sentinels while
// keeping the original error in the chain
func classify(call string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", call, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %s returned status %d: %w", ErrServiceUnavailable, call, apiErr.StatusCode, err)
		default:
			return fmt.Errorf("%w: %s returned status %d: %w", ErrServiceRejected, call, apiErr.StatusCode, err)
		}
	}

	// Transport failures and undecodable replies
	return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, call, err)
}

// contentTypeFor guesses the audio MIME type from the upload name
func contentTypeFor(fileName string) string {
	switch {
	case strings.HasSuffix(fileName, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(fileName, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(fileName, ".aac"):
		return "audio/aac"
	default:
		return "audio/mpeg"
	}
}
