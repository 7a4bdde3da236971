package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeTestConfig(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, "avatar:\n  idle_head_move: 0.3\n")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	writeTestConfig(t, path, "avatar:\n  idle_head_move: 0.9\n")

	select {
	case cfg := <-changed:
		if cfg.Avatar.IdleHeadMove != 0.9 {
			t.Errorf("expected reloaded idle_head_move=0.9, got %f", cfg.Avatar.IdleHeadMove)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never reported the change")
	}
}

func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, "audio:\n  sample_rate: 22050\n")

	changed := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changed <- cfg }, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	// A config that fails validation must never reach the callback.
	writeTestConfig(t, path, "audio:\n  sample_rate: -5\n")

	select {
	case cfg := <-changed:
		t.Errorf("invalid config delivered: sample_rate=%d", cfg.Audio.SampleRate)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeTestConfig(t, path, "log:\n  level: info\n")

	w, err := NewWatcher(path, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("first close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}
