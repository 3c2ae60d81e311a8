// Package search holds the vector-index backends behind vendor.VectorSearcher
// and the embedder that turns query text into vectors for them.
package search

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"vendor-chat-backend/internal/vendor"
)

const defaultTopK = 10

// ErrBackendDisabled is returned when no vector backend is configured.
var ErrBackendDisabled = fmt.Errorf("search: vector backend disabled: %w", vendor.ErrNoVectorIndex)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: openai.EmbeddingModel(model)}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("search: embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("search: embed: empty embedding")
	}
	return resp.Data[0].Embedding, nil
}

// Disabled is the backend used when VECTOR_BACKEND=none.
type Disabled struct{}

func (Disabled) Search(context.Context, vendor.VectorQuery) (any, error) {
	return nil, ErrBackendDisabled
}

// queryText folds the category into the embedded text so category-less
// indexes still lean towards the right vendors.
func queryText(q vendor.VectorQuery) string {
	if q.Category == "" {
		return q.Text
	}
	return q.Category + ": " + q.Text
}
