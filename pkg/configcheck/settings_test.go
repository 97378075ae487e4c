package configcheck

import "testing"

// TestCheckSettingsValid tests a well-formed settings struct passes
func TestCheckSettingsValid(t *testing.T) {
	report := CheckSettings(&Settings{
		StorePath:   "/var/lib/stanchion/state.db",
		LogLevel:    "info",
		LogFormat:   "console",
		MaxAttempts: 3,
	})
	if !report.OK() {
		t.Errorf("valid settings failed:\n%s", report)
	}
}

// TestCheckSettingsAggregates tests that every violation is reported
func TestCheckSettingsAggregates(t *testing.T) {
	report := CheckSettings(&Settings{
		StorePath:   "",
		LogLevel:    "loud",
		MaxAttempts: 0,
	})

	if report.Len() != 3 {
		t.Fatalf("report has %d entries, want 3:\n%s", report.Len(), report)
	}

	wantFields := []string{"Settings.StorePath", "Settings.LogLevel", "Settings.MaxAttempts"}
	for i, entry := range report.Entries() {
		if entry.Field != wantFields[i] {
			t.Errorf("entry[%d].Field = %q, want %q", i, entry.Field, wantFields[i])
		}
	}
}
