package memory

import "strings"

// Category is the display bucket of a memory entry.
type Category string

const (
	CategoryFact       Category = "fact"
	CategoryPreference Category = "preference"
	CategoryContext    Category = "context"
)

var preferenceKeywords = []string{"prefer", "like", "dislike", "love", "hate", "favorite"}

var factPatterns = []string{" is ", " are ", " was ", " were ", "name is", "work", "live", "age"}

// Classify assigns a category to memory text with a substring heuristic.
// Preference keywords win over fact patterns; anything else is context.
// Matching is by substring, so "likely" counts as a preference
// and "page" as a fact.
func Classify(text string) Category {
	lower := strings.ToLower(text)

	for _, kw := range preferenceKeywords {
		if strings.Contains(lower, kw) {
			return CategoryPreference
		}
	}

	for _, p := range factPatterns {
		if strings.Contains(lower, p) {
			return CategoryFact
		}
	}

	return CategoryContext
}

// Categorized holds memory texts grouped by category, each in store order.
type Categorized struct {
	Facts       []string `json:"facts"`
	Preferences []string `json:"preferences"`
	Context     []string `json:"context"`
}

// Total is the number of memories across all categories.
func (c Categorized) Total() int {
	return len(c.Facts) + len(c.Preferences) + len(c.Context)
}

// Categorize groups entries by Classify.
func Categorize(entries []Entry) Categorized {
	out := Categorized{
		Facts:       []string{},
		Preferences: []string{},
		Context:     []string{},
	}
	for _, e := range entries {
		switch Classify(e.Content) {
		case CategoryPreference:
			out.Preferences = append(out.Preferences, e.Content)
		case CategoryFact:
			out.Facts = append(out.Facts, e.Content)
		default:
			out.Context = append(out.Context, e.Content)
		}
	}
	return out
}
