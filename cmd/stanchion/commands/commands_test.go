package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stanchionhq/stanchion/pkg/configcheck"
	"github.com/stanchionhq/stanchion/pkg/faults"
)

func TestReadTokenFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "token.txt")
	if err := os.WriteFile(path, []byte("  tok-123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	token, err := readTokenFile(path)
	if err != nil {
		t.Fatalf("readTokenFile: %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("token = %q, want trimmed tok-123", token)
	}

	_, err = readTokenFile(filepath.Join(dir, "missing.txt"))
	if !faults.HasKind(err, faults.KindFileOp) {
		t.Fatalf("missing file error kind = %v, want file_operation", faults.KindOf(err))
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = readTokenFile(empty)
	if !faults.HasKind(err, faults.KindFileOp) {
		t.Fatalf("empty file error kind = %v, want file_operation", faults.KindOf(err))
	}
}

func TestDispatchErrorHints(t *testing.T) {
	authErr := faults.NewTokenError("token expired", nil)
	out := dispatchError(authErr)
	if !strings.Contains(out.Error(), "log in again") {
		t.Fatalf("auth-kind error missing re-login hint: %v", out)
	}

	cfgErr := faults.NewConfigError("bad timing range", nil)
	out = dispatchError(cfgErr)
	if !strings.Contains(out.Error(), "stanchion validate") {
		t.Fatalf("config-kind error missing validate hint: %v", out)
	}

	dbErr := faults.NewDatabaseError("locked", nil)
	if got := dispatchError(dbErr); got != dbErr {
		t.Fatalf("database-kind error should pass through, got %v", got)
	}
}

func TestGenerateIdentity(t *testing.T) {
	id, err := generateIdentity()
	if err != nil {
		t.Fatalf("generateIdentity: %v", err)
	}
	if len(id.MachineID) != 64 {
		t.Fatalf("machine_id length = %d, want 64 hex chars", len(id.MachineID))
	}
	if !strings.HasPrefix(id.SQMID, "{") || !strings.HasSuffix(id.SQMID, "}") {
		t.Fatalf("sqm_id = %q, want braced UUID", id.SQMID)
	}
	if id.SQMID != strings.ToUpper(id.SQMID) {
		t.Fatalf("sqm_id = %q, want uppercase", id.SQMID)
	}

	other, err := generateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	if other.MachineID == id.MachineID || other.DeviceID == id.DeviceID {
		t.Fatal("consecutive identities should not repeat")
	}
}

func TestSettingsFromTree(t *testing.T) {
	tree := configcheck.Tree{
		"Database": {"path": "/var/lib/stanchion/state.db", "busy_timeout_ms": "3000"},
		"Logging":  {"level": "debug", "format": "json"},
		"OAuth":    {"max_attempts": "4"},
	}

	s := settingsFromTree(tree)
	if s.StorePath != "/var/lib/stanchion/state.db" {
		t.Fatalf("StorePath = %q", s.StorePath)
	}
	if s.LogLevel != "debug" || s.LogFormat != "json" {
		t.Fatalf("log settings = %q/%q", s.LogLevel, s.LogFormat)
	}
	if s.MaxAttempts != 4 || s.BusyTimeoutMS != 3000 {
		t.Fatalf("numeric settings = %d/%d", s.MaxAttempts, s.BusyTimeoutMS)
	}

	if report := configcheck.CheckSettings(s); !report.OK() {
		t.Fatalf("expected valid settings, got: %s", report.String())
	}
}
