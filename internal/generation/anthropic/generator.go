// Package anthropic answers prompts with the Claude models.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"pdfrag/internal/domain"
	"pdfrag/internal/generation"
)

const defaultModel = "claude-3-5-haiku-latest"

type Generator struct {
	options generation.Options
	client  *anthropic.Client
}

func New(opts ...generation.Option) (*Generator, error) {
	options := generation.NewOptions(opts...)
	if options.APIKey == "" {
		return nil, errors.New("anthropic generator: missing API key")
	}
	if options.Model == "" {
		options.Model = defaultModel
	}

	clientOpts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(options.APIKey)}
	if options.BaseURL != "" {
		clientOpts = append(clientOpts, anthropicopt.WithBaseURL(options.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Generator{options: options, client: &client}, nil
}

func (g *Generator) Name() string { return "anthropic" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := g.options.CallContext(ctx)
	defer cancel()

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.options.Model),
		MaxTokens:   int64(g.options.MaxTokens),
		Temperature: anthropic.Float(float64(g.options.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	rsp, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", domain.ErrEmptyResponse
	}
	return b.String(), nil
}
