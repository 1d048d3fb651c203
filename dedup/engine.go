package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"firefeed/feed"
	"firefeed/pkg/embedding"

	"github.com/daulet/tokenizers"
	"go.uber.org/zap"
)

// ErrEmbeddingFailed marks a non-fatal embedding failure. The caller treats
// the item as new without a vector and does not retry within the same pass.
var ErrEmbeddingFailed = errors.New("embedding failed")

type EngineConfig struct {
	// TokenizerPath points at a HuggingFace tokenizer.json matching the
	// embedding model. Empty falls back to character-count truncation.
	TokenizerPath string
	MaxTokens     int
	// BodyHeadChars bounds how much of the body joins the title in the
	// embedded text.
	BodyHeadChars int
}

// Engine turns a normalized item into an embedding vector. The underlying
// model (served remotely) is single and small relative to translation models,
// so it loads once and is never evicted.
type Engine struct {
	client    embedding.Client
	tokenizer *tokenizers.Tokenizer
	cfg       EngineConfig
	logger    *zap.Logger

	mu      sync.Mutex
	version string
}

func NewEngine(client embedding.Client, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.BodyHeadChars <= 0 {
		cfg.BodyHeadChars = 500
	}

	e := &Engine{client: client, cfg: cfg, logger: logger}

	if cfg.TokenizerPath != "" {
		tk, err := tokenizers.FromFile(cfg.TokenizerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
		e.tokenizer = tk
	}

	return e, nil
}

// Embed combines the item's title with the head of its body, truncates to the
// token budget and returns the vector tagged with the embedding model version.
func (e *Engine) Embed(ctx context.Context, item feed.NormalizedItem) (Vector, error) {
	text := e.combine(item)
	if text == "" {
		return Vector{}, fmt.Errorf("%w: empty text for item %s", ErrEmbeddingFailed, item.ID)
	}
	text = e.truncate(text)

	version, err := e.modelVersion(ctx)
	if err != nil {
		return Vector{}, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	vectors, err := e.client.GetEmbeddings(ctx, []string{text})
	if err != nil {
		return Vector{}, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Vector{}, fmt.Errorf("%w: empty vector for item %s", ErrEmbeddingFailed, item.ID)
	}

	return Vector{
		ItemID:       item.ID,
		Values:       vectors[0],
		ModelVersion: version,
	}, nil
}

func (e *Engine) combine(item feed.NormalizedItem) string {
	body := item.Body
	if r := []rune(body); len(r) > e.cfg.BodyHeadChars {
		body = string(r[:e.cfg.BodyHeadChars])
	}
	return feed.CollapseWhitespace(item.Title + " " + body)
}

func (e *Engine) truncate(text string) string {
	if e.tokenizer != nil {
		ids, _ := e.tokenizer.Encode(text, false)
		if len(ids) <= e.cfg.MaxTokens {
			return text
		}
		return e.tokenizer.Decode(ids[:e.cfg.MaxTokens], true)
	}

	// No tokenizer configured: approximate ~4 chars per token. Truncation
	// counts runes so multibyte text is never cut mid-character.
	maxChars := e.cfg.MaxTokens * 4
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	return string(r[:maxChars])
}

func (e *Engine) modelVersion(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version != "" {
		return e.version, nil
	}
	v, err := e.client.ModelVersion(ctx)
	if err != nil {
		return "", err
	}
	e.version = v
	return v, nil
}

func (e *Engine) Close() error {
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	return nil
}
