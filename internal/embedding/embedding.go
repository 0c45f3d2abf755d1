package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"document-chat/internal/config"
	"document-chat/internal/models"

	"github.com/rs/zerolog/log"
)

// Embedder converts text into a fixed-length vector. langchaingo's
// embeddings.EmbedderImpl satisfies it directly.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var errNoVector = errors.New("no embedding returned")

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbedConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case config.ProviderOllama, "":
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewOllamaEmbedder tries the primary endpoint and falls back to the secondary one once.
func NewOllamaEmbedder(cfg config.EmbedConfig) *Fallback {
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	log.Debug().
		Str("base_url", base).
		Str("model", cfg.Model).
		Str("primary", cfg.PrimaryPath).
		Str("fallback", cfg.FallbackPath).
		Msg("Configured ollama embedder")

	return &Fallback{
		Primary:   &OllamaEndpoint{URL: base + cfg.PrimaryPath, Model: cfg.Model, Client: client},
		Secondary: &OllamaEndpoint{URL: base + cfg.FallbackPath, Model: cfg.Model, Client: client},
	}
}

// Fallback calls Primary and, on any failure, Secondary exactly once.
type Fallback struct {
	Primary   Embedder
	Secondary Embedder
}

func (f *Fallback) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := embedOnce(ctx, f.Primary, text)
	if err == nil {
		return vec, nil
	}
	if f.Secondary == nil {
		return nil, models.NewEmbeddingError(text, err)
	}
	log.Warn().Err(err).Msg("Primary embedding endpoint failed, trying fallback")

	vec, err = embedOnce(ctx, f.Secondary, text)
	if err != nil {
		return nil, models.NewEmbeddingError(text, err)
	}
	return vec, nil
}

func embedOnce(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vec, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errNoVector
	}
	return vec, nil
}

// OllamaEndpoint posts {"model","input"} to a single embedding URL.
type OllamaEndpoint struct {
	URL    string
	Model  string
	Client *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	// Prompt is what the legacy /api/embeddings handler reads.
	Prompt string `json:"prompt,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
	Data       []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// vector checks embeddings[0], embedding and data[0].embedding in that order.
func (r *embedResponse) vector() []float32 {
	if len(r.Embeddings) > 0 && len(r.Embeddings[0]) > 0 {
		return r.Embeddings[0]
	}
	if len(r.Embedding) > 0 {
		return r.Embedding
	}
	if len(r.Data) > 0 && len(r.Data[0].Embedding) > 0 {
		return r.Data[0].Embedding
	}
	return nil
}

func (e *OllamaEndpoint) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.Model, Input: text, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request to %s: %w", e.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding request to %s failed: %d, %s", e.URL, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response from %s: %w", e.URL, err)
	}
	vec := out.vector()
	if vec == nil {
		return nil, fmt.Errorf("%s: %w", e.URL, errNoVector)
	}
	return vec, nil
}

// GenerateEmbedding embeds every chunk in order. The first failure aborts.
func GenerateEmbedding(ctx context.Context, embedder Embedder, sessionID int64, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Int64("session", sessionID).Msg("No chunks generated from content")
		return nil, nil
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := embedder.EmbedQuery(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunk.ChunkIndex, err)
		}
		chunkEmbeddings = append(chunkEmbeddings, models.ChunkEmbedding{
			Chunk:     chunk,
			SessionID: sessionID,
			Embedding: vec,
		})
	}
	return chunkEmbeddings, nil
}
