package templating

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-atis/pkg/logger"
)

func TestRenderStructuringPrompt(t *testing.T) {
	r, err := NewRenderer("", "", logger.NewNop())
	require.NoError(t, err)

	prompt, err := r.RenderStructuringPrompt(StructuringData{
		AirportCode:    "RCTP",
		AirportName:    "Taoyuan International Airport",
		TargetLanguage: "Traditional Chinese (Taiwan)",
		Fields: []PromptField{
			{Key: "wind", Hint: "wind direction and speed"},
			{Key: "qnh", Hint: "altimeter setting"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Taoyuan International Airport (RCTP)")
	assert.Contains(t, prompt, `"wind": wind direction and speed`)
	assert.Contains(t, prompt, `"qnh": altimeter setting`)
	assert.Contains(t, prompt, "Traditional Chinese (Taiwan)")
	assert.NotContains(t, prompt, "cut short")
}

func TestRenderStructuringPromptTruncated(t *testing.T) {
	r, err := NewRenderer("", "", logger.NewNop())
	require.NoError(t, err)

	prompt, err := r.RenderStructuringPrompt(StructuringData{AirportCode: "RCKH", TargetLanguage: "English", Truncated: true})
	require.NoError(t, err)
	assert.Contains(t, prompt, "cut short")
}

func TestRenderIllustrationPromptListsOnlyGivenFields(t *testing.T) {
	r, err := NewRenderer("", "", logger.NewNop())
	require.NoError(t, err)

	prompt, err := r.RenderIllustrationPrompt(IllustrationData{
		AirportCode: "RCSS",
		Fields: []IllustrationLine{
			{Key: "runway", Label: "Runway", Value: "10"},
			{Key: "wind", Label: "Wind", Value: "090 at 8 knots"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, `"RCSS"`)
	assert.Contains(t, prompt, "Runway: 10")
	assert.Contains(t, prompt, "Wind: 090 at 8 knots")
	assert.NotContains(t, prompt, "Temperature:")
}

func TestRenderIllustrationPromptRequirementsFollowFields(t *testing.T) {
	r, err := NewRenderer("", "", logger.NewNop())
	require.NoError(t, err)

	bare, err := r.RenderIllustrationPrompt(IllustrationData{AirportCode: "RCTP"})
	require.NoError(t, err)
	for _, label := range []string{"Runway indicator:", "Wind:", "Visibility:", "Clouds:", "Temperature and dew point:", "QNH:"} {
		assert.NotContains(t, bare, label)
	}
	assert.Contains(t, bare, "Title:")
	assert.Contains(t, bare, "Style:")

	prompt, err := r.RenderIllustrationPrompt(IllustrationData{
		AirportCode: "RCTP",
		Fields: []IllustrationLine{
			{Key: "visibility", Label: "Visibility", Value: "10 km"},
			{Key: "dewpoint", Label: "Dew point", Value: "18"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "- Visibility: show the visibility range")
	assert.Contains(t, prompt, "- Temperature and dew point:")
	assert.NotContains(t, prompt, "Clouds:")
	assert.NotContains(t, prompt, "QNH:")
}

func TestTemplateOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Draw {{.AirportCode}}"), 0o644))

	r, err := NewRenderer("", path, logger.NewNop())
	require.NoError(t, err)

	prompt, err := r.RenderIllustrationPrompt(IllustrationData{AirportCode: "RCTP"})
	require.NoError(t, err)
	assert.Equal(t, "Draw RCTP", prompt)
}

func TestTemplateOverrideErrors(t *testing.T) {
	_, err := NewRenderer(filepath.Join(t.TempDir(), "missing.tmpl"), "", logger.NewNop())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{.AirportCode"), 0o644))
	_, err = NewRenderer(path, "", logger.NewNop())
	assert.Error(t, err)
}
