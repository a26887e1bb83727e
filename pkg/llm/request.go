package llm

// ChatRequest represents a provider-agnostic chat completion request. The
// completion providers translate it into their wire format.
type ChatRequest struct {
	// Model name (e.g., "llama3.2", "llama-3.3-70b-versatile")
	Model string `json:"model"`

	// Conversation messages, system message first when present
	Messages []Message `json:"messages"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}
