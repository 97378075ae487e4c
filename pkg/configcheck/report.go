package configcheck

import "strings"

// Entry is a single validation failure for a field.
type Entry struct {
	// Field is the dotted field path, e.g. "Timing.page_load_wait".
	Field string

	// Message describes the failure.
	Message string
}

// Report is the ordered aggregate of validation failures. Entries appear
// in the order their rules were declared.
type Report struct {
	entries []Entry
}

// Add appends a failure to the report.
func (r *Report) Add(field, message string) {
	r.entries = append(r.entries, Entry{Field: field, Message: message})
}

// Merge appends all of other's entries, preserving order.
func (r *Report) Merge(other Report) {
	r.entries = append(r.entries, other.entries...)
}

// OK reports whether the validation passed, true iff no entries exist.
func (r Report) OK() bool {
	return len(r.entries) == 0
}

// Entries returns the failures in declaration order.
func (r Report) Entries() []Entry {
	return r.entries
}

// Len returns the number of failures.
func (r Report) Len() int {
	return len(r.entries)
}

// String renders one "Field: message" line per failure.
func (r Report) String() string {
	if len(r.entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range r.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Field)
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}
