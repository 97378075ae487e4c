package configcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestLoadTree tests YAML loading into a flat tree
func TestLoadTree(t *testing.T) {
	path := writeConfig(t, `
Browser:
  chrome_path: /usr/bin/chrome
Timing:
  page_load_wait: 0.5-1.5
  max_timeout: 160
OAuth:
  timeout: 30
  redirect_uri: ~
`)

	tree, err := LoadTree(path)
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}

	tests := []struct {
		field string
		want  string
	}{
		{"Browser.chrome_path", "/usr/bin/chrome"},
		{"Timing.page_load_wait", "0.5-1.5"},
		{"Timing.max_timeout", "160"},
		{"OAuth.timeout", "30"},
		{"OAuth.redirect_uri", ""},
	}
	for _, tt := range tests {
		got, ok := tree.Lookup(tt.field)
		if !ok {
			t.Errorf("field %s missing", tt.field)
			continue
		}
		if got != tt.want {
			t.Errorf("Lookup(%s) = %q, want %q", tt.field, got, tt.want)
		}
	}

	if _, ok := tree.Lookup("Browser.edge_path"); ok {
		t.Error("absent key reported as present")
	}
	if _, ok := tree.Lookup("nosection"); ok {
		t.Error("undotted field reported as present")
	}
}

// TestLoadTreeMissingFile tests the file-operation fault kind
func TestLoadTreeMissingFile(t *testing.T) {
	_, err := LoadTree(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !faults.HasKind(err, faults.KindFileOp) {
		t.Errorf("error kind = %s, want file_operation", faults.KindOf(err))
	}
}

// TestLoadTreeMalformedYAML tests the config fault kind
func TestLoadTreeMalformedYAML(t *testing.T) {
	path := writeConfig(t, "Browser: [not: a: mapping")

	_, err := LoadTree(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !faults.HasKind(err, faults.KindConfig) {
		t.Errorf("error kind = %s, want config", faults.KindOf(err))
	}
}

// TestLoadTreeRejectsNesting tests the one-level flatness constraint
func TestLoadTreeRejectsNesting(t *testing.T) {
	path := writeConfig(t, `
Browser:
  chrome:
    path: /usr/bin/chrome
`)

	_, err := LoadTree(path)
	if err == nil {
		t.Fatal("expected error for nested section")
	}
	if !faults.HasKind(err, faults.KindConfig) {
		t.Errorf("error kind = %s, want config", faults.KindOf(err))
	}
}
