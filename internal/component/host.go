// Package component imports integration component code on demand.
//
// An integration's code is a Lua module: component.lua for the component
// itself and <platform>.lua for each platform it offers. The Host keeps its
// own import cache, separate from the manifest cache, and de-duplicates
// concurrent imports of the same module so each file is executed exactly once
// per process.
package component

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Import errors.
var (
	// ErrNotFound is returned when the module file does not exist.
	ErrNotFound = errors.New("component module not found")

	// ErrClosed is returned when importing through a closed host.
	ErrClosed = errors.New("component host is closed")
)

// Host caches imported component modules keyed by "<domain>" for components
// and "<domain>.<platform>" for platforms.
type Host struct {
	logger *zap.Logger

	mu       sync.Mutex
	modules  map[string]*Module
	inflight map[string]*importJob
	missing  map[string]bool
	closed   bool
}

// importJob is the in-flight placeholder concurrent importers wait on.
type importJob struct {
	done chan struct{}
	mod  *Module
	err  error
}

// NewHost creates a component host.
func NewHost(logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		logger:   logger,
		modules:  make(map[string]*Module),
		inflight: make(map[string]*importJob),
		missing:  make(map[string]bool),
	}
}

// Import returns the module for key, loading it from path on first use.
// Concurrent imports of the same key share one underlying load. Import
// failures are not cached; a later call retries the load.
func (h *Host) Import(ctx context.Context, key, path string) (*Module, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if mod, ok := h.modules[key]; ok {
		h.mu.Unlock()
		return mod, nil
	}
	if job, ok := h.inflight[key]; ok {
		h.mu.Unlock()
		select {
		case <-job.done:
			return job.mod, job.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	job := &importJob{done: make(chan struct{})}
	h.inflight[key] = job
	h.mu.Unlock()

	mod, err := loadModule(key, path)

	h.mu.Lock()
	delete(h.inflight, key)
	if err == nil {
		h.modules[key] = mod
	}
	h.mu.Unlock()

	job.mod = mod
	job.err = err
	close(job.done)

	if err != nil {
		h.logger.Error("component import failed",
			zap.String("module", key),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}

	h.logger.Debug("component imported",
		zap.String("module", key),
		zap.String("path", path))
	return mod, nil
}

// Cached returns the module for key if it has already been imported.
func (h *Host) Cached(key string) (*Module, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mod, ok := h.modules[key]
	return mod, ok
}

// MarkMissing records that the module for key does not exist, so later
// lookups can fail without touching the filesystem.
func (h *Host) MarkMissing(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.missing[key] = true
}

// Missing reports whether key was recorded as nonexistent.
func (h *Host) Missing(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.missing[key]
}

// Count returns the number of imported modules.
func (h *Host) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.modules)
}

// Close releases all imported modules.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, mod := range h.modules {
		mod.Close()
	}
	h.modules = make(map[string]*Module)
}

// loadModule executes the Lua file at path in a fresh state.
func loadModule(key, path string) (*Module, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, err
	}

	state := lua.NewState()
	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	return &Module{key: key, path: path, state: state}, nil
}

// Module is one imported component or platform module. Calls into the Lua
// state are serialized; gopher-lua states are not goroutine-safe.
type Module struct {
	key  string
	path string

	mu    sync.Mutex
	state *lua.LState
}

// Key returns the module's import key.
func (m *Module) Key() string { return m.key }

// Path returns the file the module was loaded from.
func (m *Module) Path() string { return m.path }

// HasFunction returns true if the module defines the named global function.
func (m *Module) HasFunction(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return false
	}
	return m.state.GetGlobal(name).Type() == lua.LTFunction
}

// Global returns a global value from the module.
func (m *Module) Global(name string) lua.LValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return lua.LNil
	}
	return m.state.GetGlobal(name)
}

// Call invokes a global function in the module. Missing functions are not an
// error; setup hooks are optional.
func (m *Module) Call(fn string, args ...lua.LValue) ([]lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil, ErrClosed
	}

	target := m.state.GetGlobal(fn)
	if target.Type() != lua.LTFunction {
		return nil, nil
	}

	base := m.state.GetTop()
	if err := m.state.CallByParam(lua.P{
		Fn:      target,
		NRet:    lua.MultRet,
		Protect: true,
	}, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.key, fn, err)
	}

	nret := m.state.GetTop() - base
	results := make([]lua.LValue, 0, nret)
	for i := base + 1; i <= m.state.GetTop(); i++ {
		results = append(results, m.state.Get(i))
	}
	m.state.SetTop(base)

	return results, nil
}

// Close releases the module's Lua state.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}
