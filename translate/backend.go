package translate

import "context"

// Model is a loaded translation model for one language pair. Implementations
// are owned by the Manager; callers only see them through a scoped Handle.
type Model interface {
	// Translate runs batched inference over texts, returning one translation
	// per input in input order.
	Translate(ctx context.Context, texts []string) ([]string, error)
	// Version identifies the underlying model.
	Version() string
	// FootprintMB estimates the model's resident memory.
	FootprintMB() int64
	Close() error
}

// Backend loads models on demand. Load is expected to be slow and blocking.
type Backend interface {
	Load(ctx context.Context, pair Pair) (Model, error)
}
