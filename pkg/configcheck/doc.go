// Package configcheck validates Stanchion's configuration tree against a
// declared rule set. Validation aggregates: every rule is evaluated
// independently and all failures are collected into an ordered report, so a
// user sees the complete list of offending fields in one pass. Validate
// never returns an error; malformed input is itself a validation failure.
package configcheck
