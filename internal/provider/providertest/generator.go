// Package providertest provides a scriptable provider.Generator for tests.
package providertest

import (
	"context"
	"sync"
)

// Step is one scripted Generate outcome.
type Step struct {
	// Text is returned when Err is nil.
	Text string
	// Err is returned instead of Text when non-nil.
	Err error
}

// Generator replays Steps in order, then falls back to Reply (or an empty
// string when Reply is nil). It records every prompt it receives.
type Generator struct {
	mu      sync.Mutex
	steps   []Step
	prompts []string

	// Reply computes a response once the script is exhausted.
	Reply func(prompt string) (string, error)
}

// New returns a Generator that replays steps.
func New(steps ...Step) *Generator {
	return &Generator{steps: steps}
}

// Fail returns n failing steps with err.
func Fail(n int, err error) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = Step{Err: err}
	}
	return out
}

// Generate implements provider.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	if len(g.steps) > 0 {
		s := g.steps[0]
		g.steps = g.steps[1:]
		g.mu.Unlock()
		return s.Text, s.Err
	}
	reply := g.Reply
	g.mu.Unlock()
	if reply != nil {
		return reply(prompt)
	}
	return "", nil
}

// Calls returns the number of Generate calls so far.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// Prompts returns a copy of every prompt received, in order.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
