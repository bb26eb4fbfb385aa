// Package embed provides embedding providers for the Freeform memory
// engine.
//
// The engine depends on embeddings only through the Provider interface:
// payload in, fixed-length vector out, deterministic for identical
// payloads. Implementations:
//   - HTTPProvider: Ollama or OpenAI-compatible endpoints
//   - HashProvider: deterministic offline vectors for tests and the shell
//   - CachedProvider: LRU wrapper around any other provider
//
// Example:
//
//	provider := embed.NewHTTP(embed.DefaultOllamaConfig())
//	vec, err := provider.Embed(ctx, "machine learning")
//	if err != nil {
//		log.Fatal(err) // wraps embed.ErrEmbedding
//	}
//	fmt.Printf("%d dimensions\n", len(vec))
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrEmbedding wraps every provider failure so callers can match the
// error kind without caring which backend produced it.
var ErrEmbedding = errors.New("embed: embedding failed")

// Provider converts a concept payload into a fixed-length vector.
// Embed must be deterministic for identical payloads.
type Provider interface {
	Embed(ctx context.Context, payload string) ([]float32, error)

	// Dimensions returns the length of every vector this provider emits.
	Dimensions() int
}

// Config holds HTTP provider configuration.
type Config struct {
	Provider   string        `yaml:"provider"`   // ollama, openai
	APIURL     string        `yaml:"api_url"`    // e.g. http://localhost:11434
	APIKey     string        `yaml:"api_key"`    // bearer token (openai style)
	Model      string        `yaml:"model"`      // e.g. mxbai-embed-large
	Dimensions int           `yaml:"dimensions"` // expected vector length
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultOllamaConfig returns configuration for a local Ollama instance
// with mxbai-embed-large (1024 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider:   "ollama",
		APIURL:     "http://localhost:11434",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// DefaultOpenAIConfig returns configuration for an OpenAI-compatible
// endpoint (also works with llama.cpp and vLLM servers).
func DefaultOpenAIConfig(apiKey string) *Config {
	return &Config{
		Provider:   "openai",
		APIURL:     "https://api.openai.com",
		APIKey:     apiKey,
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// HTTPProvider calls an Ollama or OpenAI-compatible embeddings endpoint.
//
// Thread-safe: the underlying http.Client handles concurrent requests.
type HTTPProvider struct {
	config *Config
	client *http.Client
}

// NewHTTP creates an HTTPProvider. If config is nil,
// DefaultOllamaConfig() is used.
func NewHTTP(config *Config) *HTTPProvider {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &HTTPProvider{
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

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for the payload. Failures (transport
// errors, non-200 responses, empty payloads the backend rejects, and
// dimension disagreements) wrap ErrEmbedding.
func (p *HTTPProvider) Embed(ctx context.Context, payload string) ([]float32, error) {
	var vec []float32
	var err error

	switch p.config.Provider {
	case "openai":
		vec, err = p.embedOpenAI(ctx, payload)
	default:
		vec, err = p.embedOllama(ctx, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if p.config.Dimensions > 0 && len(vec) != p.config.Dimensions {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			ErrEmbedding, len(vec), p.config.Dimensions)
	}
	return vec, nil
}

// Dimensions returns the configured vector length.
func (p *HTTPProvider) Dimensions() int {
	return p.config.Dimensions
}

func (p *HTTPProvider) embedOllama(ctx context.Context, payload string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: p.config.Model, Prompt: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.post(ctx, p.config.APIURL+"/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(msg))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for payload")
	}
	return out.Embedding, nil
}

func (p *HTTPProvider) embedOpenAI(ctx context.Context, payload string) ([]float32, error) {
	body, err := json.Marshal(openaiRequest{Model: p.config.Model, Input: []string{payload}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.post(ctx, p.config.APIURL+"/v1/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(msg))
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for payload")
	}
	return out.Data[0].Embedding, nil
}

func (p *HTTPProvider) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}
