// Package cover renders story cover illustrations.
package cover

import "context"

// Generator renders a cover image for a story summary and returns the
// storage key of the persisted artifact. Failures are recoverable for the
// caller: a story proceeds without a cover.
type Generator interface {
	Generate(ctx context.Context, summary, storyID string) (string, error)
}

// Registry maps provider ids to generators. Providers not present simply
// produce no cover.
type Registry map[string]Generator

// Select returns the generator for the requested provider, falling back to
// the given default id.
func (r Registry) Select(requested, fallback string) (Generator, string) {
	if gen, ok := r[requested]; ok {
		return gen, requested
	}
	if gen, ok := r[fallback]; ok {
		return gen, fallback
	}
	return nil, requested
}
