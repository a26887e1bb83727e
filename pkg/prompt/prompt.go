// Package prompt supplies the base system prompt the enricher builds on.
package prompt

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = "You are a helpful assistant."

// Source returns the current base system prompt.
type Source interface {
	Prompt() string
}

// Static is a fixed prompt.
type Static string

// Prompt returns the fixed prompt, or DefaultSystemPrompt when empty.
func (s Static) Prompt() string {
	if s == "" {
		return DefaultSystemPrompt
	}
	return string(s)
}
