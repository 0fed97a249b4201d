// Package embedder wraps external embedding providers behind a single
// batching, rate-limited, retrying client. Provider backends (OpenAI, Azure
// OpenAI, Ollama, Gemini) do one call each; the Client adds partitioning,
// exponential backoff on transient failures, and per-call timeouts.
package embedder

import "context"

// Backend is a single round-trip to one embedding provider. Implementations
// must be safe for concurrent use, return exactly one vector per input text
// in input order, and classify provider failures as *ProviderError.
type Backend interface {
	// Embed converts a batch of texts into their embeddings. The returned
	// slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
