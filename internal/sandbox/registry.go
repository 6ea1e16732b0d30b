package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps language tags to evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register binds each language tag to e. Tags are case-insensitive.
func (r *Registry) Register(e Evaluator, languages ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lang := range languages {
		r.evaluators[normalizeLanguage(lang)] = e
	}
}

// Lookup returns the evaluator for language.
func (r *Registry) Lookup(language string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[normalizeLanguage(language)]
	return e, ok
}

// Supports reports whether language has an evaluator.
func (r *Registry) Supports(language string) bool {
	_, ok := r.Lookup(language)
	return ok
}

// Languages returns the registered tags, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.evaluators))
	for lang := range r.evaluators {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Evaluate dispatches p to the evaluator for p.Language.
func (r *Registry) Evaluate(ctx context.Context, p Program) Result {
	e, ok := r.Lookup(p.Language)
	if !ok {
		return Result{Err: fmt.Errorf("%w: %q", ErrUnsupportedLanguage, p.Language)}
	}
	return e.Evaluate(ctx, p)
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
