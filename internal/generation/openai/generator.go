// Package openai answers prompts through an OpenAI-compatible chat API.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"pdfrag/internal/domain"
	"pdfrag/internal/generation"
)

const defaultModel = "gpt-4o-mini"

type Generator struct {
	options generation.Options
	client  *openai.Client
}

func New(opts ...generation.Option) (*Generator, error) {
	options := generation.NewOptions(opts...)
	if options.APIKey == "" && options.BaseURL == "" {
		return nil, errors.New("openai generator: missing API key")
	}
	if options.Model == "" {
		options.Model = defaultModel
	}

	cfg := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		cfg.BaseURL = options.BaseURL
	}

	return &Generator{options: options, client: openai.NewClientWithConfig(cfg)}, nil
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := g.options.CallContext(ctx)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       g.options.Model,
		Temperature: g.options.Temperature,
		MaxTokens:   g.options.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	rsp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(rsp.Choices) == 0 || strings.TrimSpace(rsp.Choices[0].Message.Content) == "" {
		return "", domain.ErrEmptyResponse
	}
	return rsp.Choices[0].Message.Content, nil
}
