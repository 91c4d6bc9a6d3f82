// Package embed provides the embedding provider used by the background
// pipeline.
//
// The embedding job handler turns note content into a fixed-dimension
// vector through an Embedder; the default implementation talks to a local
// Ollama instance. Model internals are out of scope here: the rest of the
// system only depends on the Embedder contract.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder generates vector embeddings from text.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must honor ctx cancellation: a hung backend fails the calling job
// instead of starving a worker.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int

	// Model returns the model name.
	Model() string
}

// Config holds embedding provider configuration.
type Config struct {
	APIURL     string        // e.g. http://localhost:11434
	APIPath    string        // e.g. /api/embeddings
	Model      string        // e.g. mxbai-embed-large
	Dimensions int           // expected dimensions, for validation
	Timeout    time.Duration // request timeout
}

// DefaultOllamaConfig returns configuration for local Ollama with
// mxbai-embed-large (1024 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		APIURL:     "http://localhost:11434",
		APIPath:    "/api/embeddings",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// OllamaEmbedder implements Embedder against a local Ollama server.
//
// Thread-safe: the underlying http.Client is shared across goroutines.
type OllamaEmbedder struct {
	config *Config
	client *http.Client
}

// NewOllama creates an Ollama embedder. Nil config uses
// DefaultOllamaConfig.
func NewOllama(config *Config) *OllamaEmbedder {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &OllamaEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates a vector embedding for a single text string.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  e.config.Model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.APIURL + e.config.APIPath
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if e.config.Dimensions > 0 && len(ollamaResp.Embedding) != e.config.Dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d",
			e.config.Dimensions, len(ollamaResp.Embedding))
	}
	return ollamaResp.Embedding, nil
}

// Dimensions returns the expected embedding dimensions.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Model returns the model name.
func (e *OllamaEmbedder) Model() string {
	return e.config.Model
}

// BuildEmbeddingText composes the text sent to the embedding model for a
// note: title and tags lead so they weigh into the vector, then content.
func BuildEmbeddingText(title, content string, tags []string) string {
	var buf bytes.Buffer
	if title != "" {
		buf.WriteString(title)
		buf.WriteString("\n")
	}
	for _, tag := range tags {
		buf.WriteString(tag)
		buf.WriteString(" ")
	}
	if len(tags) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString(content)
	return buf.String()
}
