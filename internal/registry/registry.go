// Package registry holds the authoritative in-memory mapping from stylesheet
// name to compiled executable. It is a rebuildable cache over the on-disk
// store and the only mutable shared state in the transformation core.
package registry

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dans-labs/transformer/internal/engine"
	"github.com/dans-labs/transformer/internal/logging"
	"github.com/dans-labs/transformer/internal/store"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// Registry maps stylesheet names to compiled executables, safe for
// concurrent readers and writers. Entries never expire; they live until
// replaced by an upsert or destroyed by Clear/ReloadAll.
type Registry struct {
	compiler engine.Compiler
	store    *store.Store
	logger   logging.Logger

	mu      sync.RWMutex
	entries map[string]engine.Executable
}

// New creates an empty registry over the given compiler and store.
func New(compiler engine.Compiler, st *store.Store, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		compiler: compiler,
		store:    st,
		logger:   logger.WithComponent("registry"),
		entries:  make(map[string]engine.Executable),
	}
}

// Lookup returns the compiled stylesheet registered under name.
func (r *Registry) Lookup(name string) (engine.Executable, error) {
	r.mu.RLock()
	exec, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, svcerrors.NewNotFound(name)
	}
	return exec, nil
}

// Upsert compiles source and registers it under name, replacing any prior
// entry. On compile failure the prior entry, if any, is left untouched.
func (r *Registry) Upsert(name string, source []byte) error {
	exec, err := r.compiler.Compile(name, source)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[name] = exec
	r.mu.Unlock()
	return nil
}

// Names returns the sorted names currently registered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered stylesheets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]engine.Executable)
	r.mu.Unlock()
}

// ReloadAll rebuilds the registry from every stylesheet file in the store.
// A file that fails to compile is logged and skipped; one bad stylesheet
// cannot take down the scan. The replacement entry set is built off to the
// side and published in a single swap, so concurrent readers observe either
// the old or the new registry, never a partial one.
func (r *Registry) ReloadAll(ctx context.Context) ([]string, error) {
	files, err := r.store.Files()
	if err != nil {
		return nil, svcerrors.NewInternal("scanning stylesheet store failed", err)
	}

	fresh := make(map[string]engine.Executable, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		exec, err := r.compiler.CompileFile(file)
		if err != nil {
			r.logger.Warn(ctx, err, "skipping stylesheet that does not compile", "file", file)
			continue
		}
		// Registry keys are basenames; files in different subdirectories
		// can carry the same basename and the walk order decides which
		// one survives.
		if _, exists := fresh[name]; exists {
			r.logger.Warn(ctx, nil, "duplicate stylesheet name in store, replacing earlier file",
				"name", name, "file", file)
		}
		fresh[name] = exec
		r.logger.Debug(ctx, "loaded stylesheet", "name", name)
	}

	r.mu.Lock()
	r.entries = fresh
	r.mu.Unlock()

	names := make([]string, 0, len(fresh))
	for name := range fresh {
		names = append(names, name)
	}
	sort.Strings(names)
	r.logger.Info(ctx, "registry reloaded", "stylesheets", len(names))
	return names, nil
}
