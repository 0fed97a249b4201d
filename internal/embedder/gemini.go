package embedder

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements Backend using the Gemini embedding API through
// the google.golang.org/genai SDK. It is safe for concurrent use.
type GeminiEmbedder struct {
	// client is the shared GenAI client.
	client *genai.Client
	// model is the embedding model name (e.g. "gemini-embedding-001").
	model string
	// dimensions is the desired output dimensionality (0 = model default).
	dimensions int
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the embedding model name (default "gemini-embedding-001").
	Model string
	// Dimensions is the desired output vector length (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder from the given config.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiEmbedder{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// API failures come back as *ProviderError classified by the reported code.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		var aerr genai.APIError
		if errors.As(err, &aerr) {
			return nil, &ProviderError{
				Status:  aerr.Code,
				Message: aerr.Message,
				Class:   classifyStatus(aerr.Code),
			}
		}
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
