package domain

import "context"

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// Chat roles.
const (
	ChatRoleSystem = "system"
	ChatRoleUser   = "user"
)

// ChatOptions tune a single completion call.
type ChatOptions struct {
	Temperature float32
	JSONMode    bool
	MaxTokens   int
}

// Completer is the shared synchronous chat completion contract between layers.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []ChatMessage, opts ChatOptions) (string, error)
}

// TokenStream yields incremental completion text. Recv returns io.EOF when the
// stream ends; Close must always be called and is safe to call twice.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// Streamer opens streaming chat completions.
type Streamer interface {
	Stream(ctx context.Context, model string, msgs []ChatMessage, opts ChatOptions) (TokenStream, error)
}

// Embedder vectorizes texts in a single call; output order matches input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
