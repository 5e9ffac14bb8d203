package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
	// GenerateJSON asks for a single JSON object as output. Providers without
	// a native JSON output mode fall back to plain generation; callers must
	// validate the payload either way.
	GenerateJSON(ctx context.Context, messages []Message) (Response, error)
}
