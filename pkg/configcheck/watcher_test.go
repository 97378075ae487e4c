package configcheck

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestWatcherRevalidate tests one-shot re-validation
func TestWatcherRevalidate(t *testing.T) {
	path := writeConfig(t, "Timing:\n  input_wait: 2-1\n")
	w := NewWatcher(path, DefaultRules(), zerolog.Nop())

	report, err := w.Revalidate()
	if err != nil {
		t.Fatalf("Revalidate failed: %v", err)
	}
	if report.Len() != 1 {
		t.Fatalf("report has %d entries, want 1:\n%s", report.Len(), report)
	}
}

// TestWatcherDetectsChange tests re-validation after a file write
func TestWatcherDetectsChange(t *testing.T) {
	path := writeConfig(t, "Timing:\n  input_wait: 1-2\n")

	w := NewWatcher(path, DefaultRules(), zerolog.Nop())
	w.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan Report, 4)
	err := w.Watch(ctx, func(report Report, err error) {
		if err != nil {
			t.Errorf("revalidation error: %v", err)
			return
		}
		reports <- report
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Break the config and wait for the watcher to notice
	if err := os.WriteFile(path, []byte("Timing:\n  input_wait: 9-1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case report := <-reports:
		if report.OK() {
			t.Error("expected the broken config to fail validation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
