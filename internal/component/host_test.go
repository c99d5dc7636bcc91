package component

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func writeLua(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportAndCall(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", `
counter = 0
function setup(prefix)
	counter = counter + 1
	return prefix .. "-ready", counter
end
`)

	h := NewHost(nil)
	defer h.Close()

	mod, err := h.Import(context.Background(), "light", path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if mod.Key() != "light" {
		t.Errorf("Key() = %q", mod.Key())
	}
	if !mod.HasFunction("setup") {
		t.Error("expected setup function")
	}
	if mod.HasFunction("teardown") {
		t.Error("unexpected teardown function")
	}

	results, err := mod.Call("setup", lua.LString("light"))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Call() returned %d values, want 2", len(results))
	}
	if got := results[0].String(); got != "light-ready" {
		t.Errorf("result[0] = %q", got)
	}
	if got := lua.LVAsNumber(results[1]); got != 1 {
		t.Errorf("result[1] = %v", got)
	}
}

func TestImportCached(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", "loaded = true\n")

	h := NewHost(nil)
	defer h.Close()
	ctx := context.Background()

	first, err := h.Import(ctx, "light", path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	second, err := h.Import(ctx, "light", path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if first != second {
		t.Error("expected cached module instance")
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d", h.Count())
	}

	if mod, ok := h.Cached("light"); !ok || mod != first {
		t.Error("Cached() should return the imported module")
	}
	if _, ok := h.Cached("switch"); ok {
		t.Error("Cached() should miss for unknown keys")
	}
}

func TestImportConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", "loaded = true\n")

	h := NewHost(nil)
	defer h.Close()

	const workers = 16
	mods := make([]*Module, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			mod, err := h.Import(context.Background(), "light", path)
			if err != nil {
				t.Errorf("Import() error = %v", err)
				return
			}
			mods[w] = mod
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		if mods[w] != mods[0] {
			t.Fatal("concurrent imports must share one module")
		}
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
}

func TestImportNotFound(t *testing.T) {
	h := NewHost(nil)
	defer h.Close()

	_, err := h.Import(context.Background(), "ghost", filepath.Join(t.TempDir(), "ghost.lua"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Import() error = %v, want ErrNotFound", err)
	}
}

func TestImportFailureRetried(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", "this is not lua (\n")

	h := NewHost(nil)
	defer h.Close()
	ctx := context.Background()

	if _, err := h.Import(ctx, "light", path); err == nil {
		t.Fatal("expected load error")
	}

	// Failures are not cached; a fixed file imports fine.
	writeLua(t, dir, "component.lua", "loaded = true\n")
	mod, err := h.Import(ctx, "light", path)
	if err != nil {
		t.Fatalf("Import() after fix error = %v", err)
	}
	if mod.Global("loaded") != lua.LTrue {
		t.Error("expected loaded global")
	}
}

func TestMissingMarker(t *testing.T) {
	h := NewHost(nil)
	defer h.Close()

	if h.Missing("hue.vacuum") {
		t.Error("nothing marked missing yet")
	}
	h.MarkMissing("hue.vacuum")
	if !h.Missing("hue.vacuum") {
		t.Error("expected missing marker")
	}
}

func TestCallMissingFunctionIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", "loaded = true\n")

	h := NewHost(nil)
	defer h.Close()

	mod, err := h.Import(context.Background(), "light", path)
	if err != nil {
		t.Fatal(err)
	}

	results, err := mod.Call("setup")
	if err != nil {
		t.Errorf("Call() error = %v", err)
	}
	if results != nil {
		t.Errorf("Call() results = %v, want none", results)
	}
}

func TestCallRuntimeError(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", `
function setup()
	error("boom")
end
`)

	h := NewHost(nil)
	defer h.Close()

	mod, err := h.Import(context.Background(), "light", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mod.Call("setup"); err == nil {
		t.Fatal("expected runtime error")
	}
}

func TestHostClose(t *testing.T) {
	dir := t.TempDir()
	path := writeLua(t, dir, "component.lua", "loaded = true\n")

	h := NewHost(nil)
	mod, err := h.Import(context.Background(), "light", path)
	if err != nil {
		t.Fatal(err)
	}

	h.Close()
	h.Close() // idempotent

	if _, err := h.Import(context.Background(), "light", path); !errors.Is(err, ErrClosed) {
		t.Errorf("Import() after close error = %v, want ErrClosed", err)
	}
	if _, err := mod.Call("anything"); !errors.Is(err, ErrClosed) {
		t.Errorf("Call() on closed module error = %v, want ErrClosed", err)
	}
}
