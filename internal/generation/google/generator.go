// Package google answers prompts with the Gemini models.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"pdfrag/internal/domain"
	"pdfrag/internal/generation"
)

const defaultModel = "gemini-1.5-pro-latest"

type Generator struct {
	options generation.Options
	client  *genai.Client
	// generate sends one prompt to the configured model.
	generate func(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)
}

func New(ctx context.Context, opts ...generation.Option) (*Generator, error) {
	options := generation.NewOptions(opts...)
	if options.APIKey == "" {
		return nil, errors.New("google generator: missing API key")
	}
	if options.Model == "" {
		options.Model = defaultModel
	}

	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.APIKey)}
	if options.BaseURL != "" {
		clientOpts = append(clientOpts, genaiopt.WithEndpoint(options.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google generator: creating client: %w", err)
	}

	g := &Generator{options: options, client: client}
	g.generate = g.callModel
	return g, nil
}

func (g *Generator) Name() string { return "google" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := g.options.CallContext(ctx)
	defer cancel()

	rsp, err := g.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return responseText(rsp)
}

func (g *Generator) callModel(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.options.Model)
	model.SetTemperature(g.options.Temperature)
	if g.options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.options.MaxTokens))
	}
	return model.GenerateContent(ctx, genai.Text(prompt))
}

// responseText joins the text parts of the first candidate.
func responseText(rsp *genai.GenerateContentResponse) (string, error) {
	if rsp == nil || len(rsp.Candidates) == 0 {
		return "", domain.ErrEmptyResponse
	}
	first := rsp.Candidates[0]
	if first == nil || first.Content == nil || len(first.Content.Parts) == 0 {
		return "", domain.ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range first.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", domain.ErrEmptyResponse
	}
	return b.String(), nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}
