package core

import (
	"strings"
	"sync"
	"time"
)

// PromptTTL is how long a select menu stays answerable.
const PromptTTL = 15 * time.Minute

// Prompt is the state behind a select menu sent to one user.
type Prompt struct {
	User    string
	Text    string
	Extra   []string
	created time.Time
}

// Prompts keeps the state of open select menus keyed by the id of the
// command interaction that opened them.
type Prompts struct {
	mu    sync.Mutex
	items map[string]Prompt
	now   func() time.Time
}

func NewPrompts(now func() time.Time) *Prompts {
	if now == nil {
		now = time.Now
	}
	return &Prompts{items: map[string]Prompt{}, now: now}
}

// Put stores p under id and drops expired prompts.
func (p *Prompts) Put(id string, prompt Prompt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, v := range p.items {
		if now.Sub(v.created) > PromptTTL {
			delete(p.items, k)
		}
	}
	prompt.created = now
	p.items[id] = prompt
}

// Take returns the prompt for id if user opened it and it has not expired.
// A successful Take consumes the prompt.
func (p *Prompts) Take(id, user string) (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt, ok := p.items[id]
	if !ok || prompt.User != user || p.now().Sub(prompt.created) > PromptTTL {
		return Prompt{}, false
	}
	delete(p.items, id)
	return prompt, true
}

// CustomID joins a module prefix, an action and a key into a component id.
func CustomID(parts ...string) string { return strings.Join(parts, ":") }

// SplitCustomID is the inverse of CustomID for ids with exactly n parts.
func SplitCustomID(id string, n int) ([]string, bool) {
	parts := strings.SplitN(id, ":", n)
	return parts, len(parts) == n
}
