package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/console"
	"github.com/oooz/oooz-bot/src/data/store"
)

// registerAdmin adds the database.* and config.* console operations.
func registerAdmin(reg *console.Registry, st *store.Store, cfg *config.Holder) {
	db := reg.Scope("database")
	db.Register("data", "[key]", "prints the database or one top-level key", func(ctx context.Context, key string) (any, error) {
		tree := st.Dump(ctx)
		if key != "" {
			v, ok := tree[key]
			if !ok {
				return nil, fmt.Errorf("database: no such key %q", key)
			}
			tree = map[string]any{key: v}
		}
		return store.Encode(tree)
	})
	db.Register("load", "", "reloads the database from disk", func(ctx context.Context, _ string) (any, error) {
		return nil, st.Load(ctx)
	})
	db.Register("save", "", "saves the database to disk", func(ctx context.Context, _ string) (any, error) {
		return nil, st.Save(ctx)
	})
	db.Register("start", "", "starts autosaving", func(ctx context.Context, _ string) (any, error) {
		return nil, st.Start(context.WithoutCancel(ctx))
	})
	db.Register("stop", "", "stops autosaving", func(context.Context, string) (any, error) {
		return nil, st.Stop()
	})

	c := reg.Scope("config")
	c.Register("all", "", "prints the configuration", func(context.Context, string) (any, error) {
		return cfg.Lookup("")
	})
	c.Register("get", "<key>", "prints one dotted configuration key", func(_ context.Context, key string) (any, error) {
		if key == "" {
			return nil, errors.New("config: key is required")
		}
		return cfg.Lookup(key)
	})
	c.Register("set", "<key> <yaml value>", "changes one configuration key in memory", func(_ context.Context, arg string) (any, error) {
		key, value, ok := strings.Cut(arg, " ")
		if !ok {
			return nil, errors.New("config: usage: config.set <key> <value>")
		}
		return nil, cfg.Set(key, strings.TrimSpace(value))
	})
	c.Register("load", "", "reloads the configuration file", func(context.Context, string) (any, error) {
		return nil, cfg.Reload()
	})
	c.Register("save", "", "writes the configuration file", func(context.Context, string) (any, error) {
		return nil, cfg.Save()
	})
}
