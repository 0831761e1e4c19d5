// Package insight asks one or more language-model providers to comment on a
// weekly report and combines their answers.
package insight

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/pkg/anthropic"
)

// Prompt is the input handed to every provider. System carries the shared
// report context; User carries the analysis-specific instruction.
type Prompt struct {
	Analysis string
	System   string
	User     string
}

// Provider is a single analysis backend.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, prompt Prompt) (string, error)
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// AnthropicProvider runs prompts through the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicProvider creates an AnthropicProvider. MaxTokens defaults to 1024.
func NewAnthropicProvider(client anthropic.Client, cfg AnthropicConfig) *AnthropicProvider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &AnthropicProvider{client: client, cfg: cfg}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Analyze implements Provider.
func (p *AnthropicProvider) Analyze(ctx context.Context, prompt Prompt) (string, error) {
	temp := p.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt.User}},
		Temperature: &temp,
	}
	if prompt.System != "" {
		req.System = anthropic.CachedSystem(prompt.System)
	}

	resp, err := p.client.CreateMessage(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "insight: anthropic %s", prompt.Analysis)
	}
	resp.Usage.LogCost(p.cfg.Model, prompt.Analysis)

	text := resp.Text()
	if text == "" {
		return "", eris.Errorf("insight: anthropic %s: empty response", prompt.Analysis)
	}
	return text, nil
}
