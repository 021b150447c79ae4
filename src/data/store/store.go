package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/metrics"
)

var (
	ErrStarted    = errors.New("store: autosave already running")
	ErrNotStarted = errors.New("store: autosave not running")
)

// SaveHook runs after every successful save with a deep copy of the tree.
type SaveHook func(ctx context.Context, snapshot map[string]any)

// Options configures a Store.
type Options struct {
	Path     string
	Interval func() time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Store is the process-wide persistent tree. Every access goes through Update
// or View, which hold the single store lock for the duration of the callback.
// Nested calls made with the callback's context reuse the held lock.
type Store struct {
	mu    sync.Mutex
	data  map[string]any
	dirty bool

	path     string
	interval func() time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	hooksMu sync.Mutex
	hooks   []SaveHook

	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}
}

// New creates an empty store. Call Load to read the snapshot.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval == nil {
		opts.Interval = func() time.Duration { return time.Minute }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		data:     map[string]any{},
		path:     opts.Path,
		interval: opts.Interval,
		log:      opts.Logger.With("component", "store"),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

type txKey struct{ s *Store }

// Tx is the handle passed to Update and View callbacks. It is only valid
// until the callback returns.
type Tx struct {
	s        *Store
	open     bool
	readOnly bool
}

func (s *Store) heldTx(ctx context.Context) *Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{s}).(*Tx)
	if tx == nil || !tx.open {
		return nil
	}
	return tx
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx *Tx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if held := s.heldTx(ctx); held != nil {
		if !readOnly && held.readOnly {
			return errors.New("store: Update called inside View")
		}
		if !readOnly {
			s.markDirtyLocked()
		}
		return fn(ctx, held)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{s: s, open: true, readOnly: readOnly}
	defer func() { tx.open = false }()
	if !readOnly {
		// Mark before running fn so a panic or error mid-mutation still gets
		// persisted.
		s.markDirtyLocked()
	}
	return fn(context.WithValue(ctx, txKey{s}, tx), tx)
}

// Update runs fn with the store locked and marks the store dirty.
//
// Calls made with the ctx handed to fn join the running transaction instead
// of locking again. Do not hand that ctx to another goroutine while fn is
// running: its calls would skip the lock. Once fn returns the ctx locks
// normally again.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn with the store locked without marking it dirty. fn must not
// mutate the tree. The ctx rules of Update apply.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) markDirtyLocked() {
	if !s.dirty {
		s.dirty = true
		s.metrics.StoreDirty(true)
	}
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Get returns the value stored under key.
func (tx *Tx) Get(key string) (any, bool) {
	v, ok := tx.s.data[key]
	return v, ok
}

// Set stores v under key.
func (tx *Tx) Set(key string, v any) { tx.s.data[key] = v }

// Delete removes key.
func (tx *Tx) Delete(key string) { delete(tx.s.data, key) }

// Map returns the map under key, creating it when missing.
func (tx *Tx) Map(key string) map[string]any {
	if m, ok := tx.s.data[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	if !tx.readOnly {
		tx.s.data[key] = m
	}
	return m
}

// List returns the list under key, or nil.
func (tx *Tx) List(key string) []any {
	l, _ := tx.s.data[key].([]any)
	return l
}

// Time returns the timestamp under key.
func (tx *Tx) Time(key string) (time.Time, bool) {
	return AsTime(tx.s.data[key])
}

// MarkDirty flags the store for the next autosave.
func (tx *Tx) MarkDirty() { tx.s.markDirtyLocked() }

// Root exposes the whole tree.
func (tx *Tx) Root() map[string]any { return tx.s.data }

// Dump returns a deep copy of the tree.
func (s *Store) Dump(ctx context.Context) map[string]any {
	var out map[string]any
	_ = s.View(ctx, func(_ context.Context, tx *Tx) error {
		out = Clone(tx.Root()).(map[string]any)
		return nil
	})
	return out
}

// OnSave registers a hook that runs after every successful save.
func (s *Store) OnSave(hook SaveHook) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hooksMu.Unlock()
}

// Load replaces the tree with the snapshot on disk. A missing file leaves the
// store empty; any other failure is returned and the tree is left untouched.
func (s *Store) Load(ctx context.Context) error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no snapshot found, starting empty", "path", s.path)
		return s.Update(ctx, func(_ context.Context, tx *Tx) error {
			tx.s.data = map[string]any{}
			tx.s.dirty = false
			s.metrics.StoreDirty(false)
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", s.path, err)
	}
	data, err := Decode(raw)
	if err != nil {
		return fmt.Errorf("store: load %s: %w", s.path, err)
	}
	s.log.Info("loaded snapshot", "path", s.path, "keys", len(data))
	return s.Update(ctx, func(_ context.Context, tx *Tx) error {
		tx.s.data = data
		tx.s.dirty = false
		s.metrics.StoreDirty(false)
		return nil
	})
}

// Save writes the tree to disk atomically and clears the dirty flag. The
// previous snapshot is kept as <path>.<YYYY-MM-DD>.
func (s *Store) Save(ctx context.Context) error {
	var (
		raw      []byte
		snapshot map[string]any
	)
	err := s.View(ctx, func(_ context.Context, tx *Tx) error {
		var err error
		if raw, err = Encode(tx.Root()); err != nil {
			return err
		}
		if err = s.persist(raw); err != nil {
			return err
		}
		s.dirty = false
		snapshot = Clone(tx.Root()).(map[string]any)
		return nil
	})
	s.metrics.StoreSaved(err)
	if err != nil {
		s.log.Error("save failed", "path", s.path, "error", err)
		return err
	}
	s.metrics.StoreDirty(false)
	s.log.Debug("saved snapshot", "path", s.path, "bytes", len(raw))

	s.hooksMu.Lock()
	hooks := append([]SaveHook(nil), s.hooks...)
	s.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(ctx, snapshot)
	}
	return nil
}

func (s *Store) persist(raw []byte) error {
	tmpName := s.path + ".new"
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create dir: %w", err)
		}
	}
	tmp, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if err := s.backup(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// BackupPath returns where the snapshot taken on day t is backed up.
func (s *Store) BackupPath(t time.Time) string {
	return s.path + "." + t.Format("2006-01-02")
}

func (s *Store) backup() error {
	prev, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read previous snapshot: %w", err)
	}
	if err := os.WriteFile(s.BackupPath(s.now()), prev, 0o600); err != nil {
		return fmt.Errorf("store: write backup: %w", err)
	}
	return nil
}

// Start launches the autosave loop.
func (s *Store) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopStop != nil {
		return ErrStarted
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.loopStop, s.loopDone = stop, done

	go func() {
		defer close(done)
		for {
			timer := time.NewTimer(s.interval())
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			if s.Dirty() {
				_ = s.Save(context.WithoutCancel(ctx))
			}
		}
	}()
	s.log.Info("autosave started")
	return nil
}

// Stop ends the autosave loop and waits for it to exit. It does not save.
func (s *Store) Stop() error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopStop == nil {
		return ErrNotStarted
	}
	close(s.loopStop)
	<-s.loopDone
	s.loopStop, s.loopDone = nil, nil
	s.log.Info("autosave stopped")
	return nil
}

// Running reports whether the autosave loop is active.
func (s *Store) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.loopStop != nil
}
