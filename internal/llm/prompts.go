package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptSpec holds the system prompts, the tool set offered to the general
// model and sampling style.
type PromptSpec struct {
	System   string `yaml:"system"`
	Narrator string `yaml:"narrator"`
	Tools    []struct {
		Name        string         `yaml:"name"`
		Description string         `yaml:"description"`
		Parameters  map[string]any `yaml:"parameters"`
	} `yaml:"tools"`
	Style struct {
		Temperature         float32 `yaml:"temperature"`
		MaxTokens           int     `yaml:"max_tokens"`
		NarratorTemperature float32 `yaml:"narrator_temperature"`
		NarratorMaxTokens   int     `yaml:"narrator_max_tokens"`
	} `yaml:"style"`
}

// LoadPrompts reads the prompt file at path, or the embedded defaults when
// path is empty.
func LoadPrompts(path string) (PromptSpec, error) {
	b := defaultPrompts
	if path != "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return PromptSpec{}, fmt.Errorf("read prompts: %w", err)
		}
	}
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return PromptSpec{}, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(spec.System) == "" {
		return PromptSpec{}, fmt.Errorf("prompts: system prompt is empty")
	}
	return spec, nil
}

func (p PromptSpec) tools() []openai.Tool {
	out := make([]openai.Tool, 0, len(p.Tools))
	for _, t := range p.Tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (p PromptSpec) temperature() float32 {
	if p.Style.Temperature <= 0 {
		return 0.4
	}
	return p.Style.Temperature
}

func (p PromptSpec) maxTokens() int {
	if p.Style.MaxTokens <= 0 {
		return 600
	}
	return p.Style.MaxTokens
}

func (p PromptSpec) narratorTemperature() float32 {
	if p.Style.NarratorTemperature <= 0 {
		return 0.2
	}
	return p.Style.NarratorTemperature
}

func (p PromptSpec) narratorMaxTokens() int {
	if p.Style.NarratorMaxTokens <= 0 {
		return 300
	}
	return p.Style.NarratorMaxTokens
}
