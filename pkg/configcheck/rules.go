package configcheck

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Rule binds a field path to a predicate. Check receives the field's raw
// value and returns ok or a failure message.
type Rule struct {
	// Field is the dotted "Section.key" path the rule applies to.
	Field string

	// Check evaluates the value. It must not panic on malformed input;
	// malformed input is a failure, not an error.
	Check func(value string) (ok bool, message string)
}

// Validate evaluates every rule against the tree and aggregates all
// failures into a report, in rule declaration order. A failing rule never
// stops evaluation of the ones after it. Rules whose field is absent from
// the tree are skipped; only present options are validated.
func Validate(tree Tree, rules []Rule) Report {
	var report Report

	for _, rule := range rules {
		value, present := tree.Lookup(rule.Field)
		if !present {
			continue
		}
		if ok, message := rule.Check(value); !ok {
			report.Add(rule.Field, message)
		}
	}

	return report
}

// CheckPath validates a file or directory path. An empty path fails; with
// mustExist the path must exist on the filesystem. Relative paths are
// accepted.
func CheckPath(value string, mustExist bool) (bool, string) {
	if value == "" {
		return false, "path cannot be empty"
	}
	if mustExist {
		if _, err := os.Stat(value); err != nil {
			return false, "path does not exist: " + value
		}
	}
	return true, ""
}

// CheckTimingRange validates a timing value: either a single non-negative
// number or a low-high pair delimited by '-' or ','. A single value is a
// degenerate range with low == high.
func CheckTimingRange(value string) (bool, string) {
	if value == "" {
		return false, "timing value cannot be empty"
	}

	var low, high float64
	var err error

	switch {
	case strings.Contains(value, "-"):
		low, high, err = parsePair(value, "-")
	case strings.Contains(value, ","):
		low, high, err = parsePair(value, ",")
	default:
		low, err = strconv.ParseFloat(value, 64)
		high = low
	}
	if err != nil {
		return false, "invalid timing format: " + value
	}

	if low < 0 || high < 0 {
		return false, "timing values must be non-negative"
	}
	if low > high {
		return false, "minimum timing must be <= maximum timing"
	}

	return true, ""
}

func parsePair(value, delim string) (float64, float64, error) {
	parts := strings.Split(value, delim)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two values delimited by %q", delim)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// CheckMinInt validates an integer value with a lower bound.
func CheckMinInt(value string, min int) (bool, string) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false, "must be a valid integer"
	}
	if n < min {
		return false, fmt.Sprintf("must be at least %d", min)
	}
	return true, ""
}

// PathRule builds a path rule for a field.
func PathRule(field string, mustExist bool) Rule {
	return Rule{
		Field: field,
		Check: func(value string) (bool, string) {
			return CheckPath(value, mustExist)
		},
	}
}

// TimingRangeRule builds a timing-range rule for a field.
func TimingRangeRule(field string) Rule {
	return Rule{
		Field: field,
		Check: CheckTimingRange,
	}
}

// MinIntRule builds a minimum-integer rule for a field.
func MinIntRule(field string, min int) Rule {
	return Rule{
		Field: field,
		Check: func(value string) (bool, string) {
			return CheckMinInt(value, min)
		},
	}
}

// DefaultRules returns the standard rule set for the tool's configuration:
// browser executable paths, timing ranges, and OAuth bounds.
func DefaultRules() []Rule {
	browsers := []string{"chrome", "edge", "firefox", "brave", "opera", "operagx"}
	timingKeys := []string{
		"min_random_time", "max_random_time", "page_load_wait",
		"input_wait", "submit_wait", "verification_code_input",
		"verification_success_wait", "verification_retry_wait",
		"email_check_initial_wait", "email_refresh_wait",
		"settings_page_load_wait", "failed_retry_time",
		"retry_interval", "max_timeout",
	}

	rules := make([]Rule, 0, len(browsers)+len(timingKeys)+2)
	for _, browser := range browsers {
		rules = append(rules, PathRule("Browser."+browser+"_path", false))
	}
	for _, key := range timingKeys {
		rules = append(rules, TimingRangeRule("Timing."+key))
	}
	rules = append(rules,
		MinIntRule("OAuth.timeout", 1),
		MinIntRule("OAuth.max_attempts", 1),
	)

	return rules
}
