// Package google embeds text with the Gemini embedding models.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"pdfrag/internal/embedding"
)

const (
	defaultModel = "models/embedding-001"
	// maxBatch is the largest batch the API accepts per request.
	maxBatch = 100
)

// embedAPI is the part of the Gemini client the embedder calls.
type embedAPI interface {
	EmbedContent(ctx context.Context, model string, task genai.TaskType, text string) (*genai.EmbedContentResponse, error)
	BatchEmbedContents(ctx context.Context, model string, task genai.TaskType, texts []string) (*genai.BatchEmbedContentsResponse, error)
}

type clientAPI struct {
	client *genai.Client
}

func (c clientAPI) EmbedContent(ctx context.Context, model string, task genai.TaskType, text string) (*genai.EmbedContentResponse, error) {
	m := c.client.EmbeddingModel(model)
	m.TaskType = task
	return m.EmbedContent(ctx, genai.Text(text))
}

func (c clientAPI) BatchEmbedContents(ctx context.Context, model string, task genai.TaskType, texts []string) (*genai.BatchEmbedContentsResponse, error) {
	m := c.client.EmbeddingModel(model)
	m.TaskType = task
	batch := m.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	return m.BatchEmbedContents(ctx, batch)
}

type Embedder struct {
	options embedding.Options
	client  *genai.Client
	api     embedAPI
}

// New creates a Gemini embedder. An API key is required.
func New(ctx context.Context, opts ...embedding.Option) (*Embedder, error) {
	options := embedding.NewOptions(opts...)
	if options.APIKey == "" {
		return nil, errors.New("google embedder: missing API key")
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
		return nil, fmt.Errorf("google embedder: creating client: %w", err)
	}

	return &Embedder{options: options, client: client, api: clientAPI{client: client}}, nil
}

func (e *Embedder) Name() string { return "google" }

// Embed embeds a query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.options.CallContext(ctx)
	defer cancel()

	rsp, err := e.api.EmbedContent(ctx, e.options.Model, genai.TaskTypeRetrievalQuery, text)
	if err != nil {
		return nil, err
	}
	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return rsp.Embedding.Values, nil
}

// EmbedBatch embeds documents, splitting into requests the API accepts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		vectors, err := e.batch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) batch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := e.options.CallContext(ctx)
	defer cancel()

	rsp, err := e.api.BatchEmbedContents(ctx, e.options.Model, genai.TaskTypeRetrievalDocument, texts)
	if err != nil {
		return nil, err
	}
	want := len(texts)
	if rsp == nil || len(rsp.Embeddings) != want {
		return nil, fmt.Errorf("expected %d embeddings", want)
	}
	vectors := make([][]float32, want)
	for i, emb := range rsp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
