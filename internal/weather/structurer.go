package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/yegors/co-atis/internal/ai"
	"github.com/yegors/co-atis/internal/templating"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/pkg/logger"
)

const replySchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object"
}`

const fieldSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": ["string", "number"],
	"minLength": 1
}`

// placeholders are values models emit instead of leaving a field out
var placeholders = map[string]bool{
	"n/a":          true,
	"na":           true,
	"未提供":          true,
	"未知":           true,
	"無":            true,
	"not provided": true,
	"unknown":      true,
	"-":            true,
	"none":         true,
	"null":         true,
}

// ChatClient is the part of the AI client the structurer needs
type ChatClient interface {
	CompleteJSON(ctx context.Context, req ai.CompletionRequest) (string, error)
}

// PromptRenderer renders the structuring system prompt
type PromptRenderer interface {
	RenderStructuringPrompt(data templating.StructuringData) (string, error)
}

// Config configures the structurer
type Config struct {
	Model          string
	TargetLanguage string
	Temperature    float64
	AirportNames   map[string]string // code -> display name used in the prompt
}

// Structurer extracts and translates a transcript into a Report
type Structurer struct {
	client      ChatClient
	prompts     PromptRenderer
	config      Config
	replySchema *jsonschema.Schema
	fieldSchema *jsonschema.Schema
	logger      *logger.Logger
}

// NewStructurer creates a structurer and compiles its reply schemas
func NewStructurer(client ChatClient, prompts PromptRenderer, config Config, logger *logger.Logger) (*Structurer, error) {
	replySchema, err := compileSchema("reply.schema.json", replySchemaJSON)
	if err != nil {
		return nil, err
	}
	fieldSchema, err := compileSchema("field.schema.json", fieldSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &Structurer{
		client:      client,
		prompts:     prompts,
		config:      config,
		replySchema: replySchema,
		fieldSchema: fieldSchema,
		logger:      logger.Named("structurer"),
	}, nil
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("failed to add %s resource: %w", name, err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}
	return schema, nil
}

// Structure asks the model for the structured translation of transcript
func (s *Structurer) Structure(ctx context.Context, transcript *transcription.Transcript) (*Report, error) {
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return nil, fmt.Errorf("no transcript to structure")
	}

	promptFields := make([]templating.PromptField, 0, len(Fields))
	for _, def := range Fields {
		promptFields = append(promptFields, templating.PromptField{Key: def.Key, Hint: def.Hint})
	}

	systemPrompt, err := s.prompts.RenderStructuringPrompt(templating.StructuringData{
		AirportCode:    transcript.Airport,
		AirportName:    s.airportName(transcript.Airport),
		TargetLanguage: s.config.TargetLanguage,
		Truncated:      transcript.Truncated,
		Fields:         promptFields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render structuring prompt: %w", err)
	}

	start := time.Now()
	reply, err := s.client.CompleteJSON(ctx, ai.CompletionRequest{
		Model:        s.config.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   transcript.Text,
		Temperature:  s.config.Temperature,
	})
	if errors.Is(err, ai.ErrEmptyResponse) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if err != nil {
		return nil, err
	}

	report, err := s.parseReply(reply)
	if err != nil {
		s.logger.Warn("Discarding malformed structuring reply",
			logger.Airport(transcript.Airport),
			logger.String("reply", truncate(reply, 200)),
			logger.Error(err))
		return nil, err
	}

	s.logger.Info("Structuring complete",
		logger.Airport(transcript.Airport),
		logger.Int("fields_present", report.PresentCount()),
		logger.Int("fields_total", len(Fields)),
		logger.Duration("duration", time.Since(start)))

	return report, nil
}

// parseReply decodes the model output into a Report. The top level must be
// an object; each field is judged on its own and anything unusable is
// recorded as absent.
func (s *Structurer) parseReply(reply string) (*Report, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stripCodeFence(reply)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if err := s.replySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	object := doc.(map[string]any)
	report := &Report{}
	for _, def := range Fields {
		raw, ok := object[def.Key]
		if !ok || raw == nil {
			continue
		}
		if err := s.fieldSchema.Validate(raw); err != nil {
			s.logger.Debug("Dropping invalid field",
				logger.String("field", def.Key),
				logger.Error(err))
			continue
		}
		*def.get(report) = normalizeValue(raw)
	}

	return report, nil
}

func (s *Structurer) airportName(code string) string {
	if name, ok := s.config.AirportNames[code]; ok {
		return name
	}
	return code
}

// normalizeValue renders a validated scalar as a display string, mapping
// placeholders to absent
func normalizeValue(raw any) Field {
	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case json.Number:
		value = v.String()
	default:
		value = fmt.Sprint(v)
	}

	value = strings.TrimSpace(value)
	if placeholders[strings.ToLower(value)] {
		return Absent()
	}
	return Present(value)
}

// stripCodeFence removes a surrounding markdown code block
func stripCodeFence(reply string) string {
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "```") {
		return reply
	}

	reply = strings.TrimPrefix(reply, "```")
	// Drop the info string, e.g. ```json
	if idx := strings.IndexByte(reply, '\n'); idx >= 0 {
		reply = reply[idx+1:]
	} else {
		reply = strings.TrimPrefix(reply, "json")
	}
	reply = strings.TrimSpace(reply)
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}

// truncate shortens s to n runes for logging
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
