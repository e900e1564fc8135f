package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/resource"
)

func runOrSkip(t *testing.T, opts options) error {
	t.Helper()
	err := run(opts)
	if errors.Is(err, resource.ErrCompileShader) {
		t.Skipf("naga cannot compile the session shader: %v", err)
	}
	return err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rendercore.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSimSession(t *testing.T) {
	tests := []struct {
		name string
		opts options
	}{
		{"single head", options{frames: 8, loseEvery: 3, heads: 1}},
		{"multi head", options{frames: 8, loseEvery: 3, heads: 2}},
		{"no loss", options{frames: 3, heads: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runOrSkip(t, tt.opts); err != nil {
				t.Errorf("run() error = %v", err)
			}
		})
	}
}

func TestRunBackendSelection(t *testing.T) {
	missing := writeConfig(t, "backend = \"missing\"\n")
	tests := []struct {
		name    string
		opts    options
		wantErr error
	}{
		{"config names backend", options{configPath: missing, frames: 1}, backend.ErrNotAvailable},
		{"flag overrides config", options{configPath: missing, backend: backend.NameSim, frames: 1}, nil},
		{"flag names backend", options{backend: "missing", frames: 1}, backend.ErrNotAvailable},
		{"default is sim", options{frames: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runOrSkip(t, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("run() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunBadConfig(t *testing.T) {
	path := writeConfig(t, "no_such_key = 1\n")
	if err := run(options{configPath: path, frames: 1}); err == nil {
		t.Error("run() accepted an unknown config key")
	}
}

func TestOpenBackendHeads(t *testing.T) {
	b, err := openBackend(backend.NameSim, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	adapters := b.Adapters()
	if len(adapters) != 3 {
		t.Fatalf("Adapters() = %d, want 3", len(adapters))
	}
	for i, a := range adapters {
		if a.MasterAdapterOrdinal != 0 || a.AdapterOrdinalInGroup != i || a.AdaptersInGroup != 3 {
			t.Errorf("adapter %d = %+v", i, a)
		}
	}
}
