package translate

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"de": "German",
	"fr": "French",
}

type OllamaBackendConfig struct {
	ServerURL string
	// Pairs maps "src-dst" to the ollama model tag serving that pair.
	Pairs map[string]string
	// DefaultFootprintMB is used when nothing more precise is known.
	DefaultFootprintMB int64
}

// OllamaBackend loads per-pair translation models from a local ollama server.
type OllamaBackend struct {
	cfg    OllamaBackendConfig
	logger *zap.Logger
}

func NewOllamaBackend(cfg OllamaBackendConfig, logger *zap.Logger) *OllamaBackend {
	if cfg.DefaultFootprintMB <= 0 {
		cfg.DefaultFootprintMB = 512
	}
	return &OllamaBackend{cfg: cfg, logger: logger}
}

func (b *OllamaBackend) Load(ctx context.Context, pair Pair) (Model, error) {
	tag, ok := b.cfg.Pairs[pair.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPair, pair)
	}

	llm, err := ollama.New(
		ollama.WithModel(tag),
		ollama.WithServerURL(b.cfg.ServerURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client for %s: %w", tag, err)
	}

	m := &ollamaModel{
		llm:         llm,
		pair:        pair,
		tag:         tag,
		footprintMB: b.cfg.DefaultFootprintMB,
	}

	// Warmup pulls the model into server memory; a failing warmup means the
	// model is unusable for this pair.
	if _, err := m.Translate(ctx, []string{"ok"}); err != nil {
		return nil, fmt.Errorf("warmup failed for %s: %w", tag, err)
	}

	b.logger.Info("translation model loaded",
		zap.String("pair", pair.String()),
		zap.String("model", tag))

	return m, nil
}

type ollamaModel struct {
	llm         *ollama.LLM
	pair        Pair
	tag         string
	footprintMB int64
}

func (m *ollamaModel) Translate(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		if text == "" {
			continue
		}
		prompt := m.prompt(text)
		resp, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, llms.WithTemperature(0))
		if err != nil {
			return nil, fmt.Errorf("generate failed for %s: %w", m.pair, err)
		}
		out[i] = resp
	}
	return out, nil
}

func (m *ollamaModel) prompt(text string) string {
	src := languageNames[m.pair.Source]
	if src == "" {
		src = m.pair.Source
	}
	dst := languageNames[m.pair.Target]
	if dst == "" {
		dst = m.pair.Target
	}
	return fmt.Sprintf(
		"Translate the following text from %s to %s. Reply with the translation only, no commentary.\n\n%s",
		src, dst, text)
}

func (m *ollamaModel) Version() string {
	return m.tag
}

func (m *ollamaModel) FootprintMB() int64 {
	return m.footprintMB
}

func (m *ollamaModel) Close() error {
	return nil
}
