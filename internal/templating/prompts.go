package templating

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"text/template"

	"github.com/yegors/co-atis/pkg/logger"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

const (
	structuringTemplate  = "structuring.tmpl"
	illustrationTemplate = "illustration.tmpl"
)

// PromptField describes one key the structuring prompt asks for
type PromptField struct {
	Key  string
	Hint string
}

// StructuringData is the input of the structuring system prompt
type StructuringData struct {
	AirportCode    string
	AirportName    string
	TargetLanguage string
	Truncated      bool
	Fields         []PromptField
}

// IllustrationLine is one labelled value drawn into the weather diagram
type IllustrationLine struct {
	Key   string
	Label string
	Value string
}

// IllustrationData is the input of the image prompt
type IllustrationData struct {
	AirportCode string
	AirportName string
	Fields      []IllustrationLine
}

// Has reports whether the field with the given key is drawn
func (d IllustrationData) Has(key string) bool {
	for _, field := range d.Fields {
		if field.Key == key {
			return true
		}
	}
	return false
}

// Renderer renders the prompts sent to the AI service. Templates are parsed
// once at construction; an empty override path selects the built-in one.
type Renderer struct {
	structuring  *template.Template
	illustration *template.Template
	logger       *logger.Logger
}

// NewRenderer parses the structuring and illustration templates
func NewRenderer(structuringPath, illustrationPath string, logger *logger.Logger) (*Renderer, error) {
	log := logger.Named("templating")

	structuring, err := loadTemplate(structuringTemplate, structuringPath, log)
	if err != nil {
		return nil, err
	}
	illustration, err := loadTemplate(illustrationTemplate, illustrationPath, log)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		structuring:  structuring,
		illustration: illustration,
		logger:       log,
	}, nil
}

// RenderStructuringPrompt renders the extraction/translation system prompt
func (r *Renderer) RenderStructuringPrompt(data StructuringData) (string, error) {
	return r.render(r.structuring, data)
}

// RenderIllustrationPrompt renders the image generation prompt
func (r *Renderer) RenderIllustrationPrompt(data IllustrationData) (string, error) {
	return r.render(r.illustration, data)
}

func (r *Renderer) render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}

	r.logger.Debug("Rendered prompt",
		logger.String("template", tmpl.Name()),
		logger.Int("length", buf.Len()))

	return buf.String(), nil
}

func loadTemplate(name, overridePath string, log *logger.Logger) (*template.Template, error) {
	var (
		content []byte
		err     error
	)
	if overridePath != "" {
		content, err = os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template %s: %w", overridePath, err)
		}
		log.Info("Using prompt template override",
			logger.String("template", name),
			logger.String("path", overridePath))
	} else {
		content, err = defaultTemplates.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in template %s: %w", name, err)
		}
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}
