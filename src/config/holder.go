package config

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Holder guards the live configuration. Engines read it through Get so that
// console edits apply without a restart.
type Holder struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewHolder wraps cfg, remembering path for Reload and Save.
func NewHolder(path string, cfg *Config) *Holder {
	if cfg == nil {
		cfg = Default()
	}
	return &Holder{path: path, cfg: cfg}
}

// Get returns a snapshot of the current configuration. Callers must not
// mutate it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Replace swaps in cfg after validating it.
func (h *Holder) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}

// Reload re-reads the file the holder was created with.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}

// Save writes the current configuration back to its file.
func (h *Holder) Save() error {
	return Save(h.path, h.Get())
}

// Lookup returns the redacted value at a dotted yaml path such as
// "sugestie.vote_length". An empty key returns the whole tree.
func (h *Holder) Lookup(key string) (any, error) {
	tree, err := toTree(h.Get().Redacted())
	if err != nil {
		return nil, err
	}
	if key == "" {
		return tree, nil
	}
	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config: no such key %q", key)
		}
		if cur, ok = m[part]; !ok {
			return nil, fmt.Errorf("config: no such key %q", key)
		}
	}
	return cur, nil
}

// Set assigns the YAML (or JSON) encoded value to the dotted key and swaps
// in the result if it still validates.
func (h *Holder) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("config: empty key")
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("config: parse value: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tree, err := toTree(h.cfg)
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			return fmt.Errorf("config: no such section %q", part)
		}
		node = next
	}
	last := parts[len(parts)-1]
	if _, ok := node[last]; !ok {
		return fmt.Errorf("config: no such key %q", key)
	}
	node[last] = parsed

	buf, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	next := Default()
	if err := yaml.Unmarshal(buf, next); err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	h.cfg = next
	return nil
}

func toTree(cfg *Config) (map[string]any, error) {
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(buf, &tree); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return tree, nil
}
