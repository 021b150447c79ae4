// Package console serves the line-oriented administrative console: one
// operator at a time types dotted operation names over a local TCP socket.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func runs an operation. Operations registered without params get an empty
// arg. A non-string result is printed as indented JSON.
type Func func(ctx context.Context, arg string) (any, error)

type op struct {
	name   string
	params string
	desc   string
	fn     Func
}

// Registry holds the available operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]op
}

func NewRegistry() *Registry {
	return &Registry{ops: map[string]op{}}
}

// Scope registers operations under a dotted prefix.
type Scope struct {
	r      *Registry
	prefix string
}

// Scope returns a registrar for operations named name.<op>.
func (r *Registry) Scope(name string) Scope { return Scope{r: r, prefix: name + "."} }

// Register adds name. params documents the argument; empty means none.
func (s Scope) Register(name, params, desc string, fn Func) {
	s.r.Register(s.prefix+name, params, desc, fn)
}

func (r *Registry) Register(name, params, desc string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op{name: name, params: params, desc: desc, fn: fn}
}

// Help lists the operations.
func (r *Registry) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	width := 0
	for name, o := range r.ops {
		names = append(names, name)
		width = max(width, len(usage(o)))
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Operations:\n")
	for _, name := range names {
		o := r.ops[name]
		fmt.Fprintf(&b, "  %-*s  %s\n", width, usage(o), o.desc)
	}
	return b.String()
}

func usage(o op) string {
	if o.params == "" {
		return o.name
	}
	return o.name + " " + o.params
}

// Run parses and executes one command line. An empty line yields an empty
// reply.
func (r *Registry) Run(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimLeft(arg, " \t")

	r.mu.RLock()
	o, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown operation: %q", name)
	}
	if o.params == "" && arg != "" {
		return "", fmt.Errorf("operation %q expects no arguments", name)
	}
	res, err := o.fn(ctx, arg)
	if err != nil {
		return "", err
	}
	return format(res)
}

func format(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Join(errors.New("cannot print result"), err)
	}
	return string(out), nil
}
