// Package tokens provides token counting for prompt budgeting and the fixed
// estimation fallback used when a provider omits usage data.
package tokens

import (
	"strings"

	"github.com/erenbertr/chatrelay/internal/domain"
)

// charsPerToken is the fixed heuristic applied when a provider reports no
// usage. It is deliberately uniform so estimated values are exact for a
// given input length.
const charsPerToken = 4

// Estimate returns ceil(len(text)/4).
func Estimate(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages sums the estimate over all message contents.
func EstimateMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return (total + charsPerToken - 1) / charsPerToken
}

// Counter counts prompt tokens for a model. Implementations may be exact
// (tokenizer-backed) or estimated.
type Counter interface {
	CountText(model, text string) (int, error)
	SupportsModel(model string) bool
}

// Registry picks the best available counter for a model, falling back to
// the character estimator.
type Registry struct {
	counters []Counter
}

// NewRegistry creates a registry with the given counters in priority order.
func NewRegistry(counters ...Counter) *Registry {
	return &Registry{counters: counters}
}

// Count returns the token count for text under the given model.
func (r *Registry) Count(model, text string) int {
	for _, c := range r.counters {
		if !c.SupportsModel(model) {
			continue
		}
		if n, err := c.CountText(model, text); err == nil {
			return n
		}
	}
	return Estimate(text)
}

// ModelMatcher matches model names by prefix or exact name.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a matcher over the given patterns.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches reports whether the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
