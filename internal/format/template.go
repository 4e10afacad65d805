package format

import (
	"fmt"

	"github.com/lamim/prefharvest/internal/util"
	"github.com/lamim/prefharvest/pkg/models"
)

// TemplateRenderer renders conversations through a configurable Go
// text/template. The template receives .Messages and .AddGenerationPrompt.
type TemplateRenderer struct {
	template string
}

// NewTemplateRenderer creates a renderer for the given chat template. The
// template is validated immediately so a broken template fails at
// configuration time, not on first render.
func NewTemplateRenderer(chatTemplate string) (*TemplateRenderer, error) {
	if _, err := util.RenderTemplate(chatTemplate, map[string]any{
		"Messages":            []models.Message{},
		"AddGenerationPrompt": false,
	}); err != nil {
		return nil, fmt.Errorf("invalid chat template: %w", err)
	}

	return &TemplateRenderer{template: chatTemplate}, nil
}

// ApplyChatTemplate renders the messages through the configured template
func (r *TemplateRenderer) ApplyChatTemplate(messages []models.Message, addGenerationPrompt bool) (string, error) {
	return util.RenderTemplate(r.template, map[string]any{
		"Messages":            messages,
		"AddGenerationPrompt": addGenerationPrompt,
	})
}
