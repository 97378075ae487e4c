package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stanchionhq/stanchion/pkg/configcheck"
	"github.com/stanchionhq/stanchion/pkg/faults"
	"github.com/stanchionhq/stanchion/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		strict bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file against the built-in rule set.

This command checks:
  - Browser executable paths (non-empty)
  - Timing values (single numbers or low-high ranges)
  - OAuth bounds (positive timeout and attempt counts)
  - Operational settings (store path, log level and format)

All failures are aggregated into a single report; validation never stops
at the first offending field. A failing report is a warning unless
--strict is set.`,
		Example: `  # Validate the default config file
  stanchion validate

  # Validate a specific file and fail on any finding
  stanchion validate --config ./config.yaml --strict

  # Re-validate whenever the file changes
  stanchion validate --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmdLogger("validate")

			report, err := validateWithTelemetry(cmd.Context())
			if err != nil {
				// Unreadable or unparseable config cannot be validated at
				// all; that is an error, not a report entry.
				return err
			}

			printReport(report)

			if watch {
				watcher := configcheck.NewWatcher(configPath, configcheck.DefaultRules(), logger)
				err := watcher.Watch(cmd.Context(), func(r configcheck.Report, err error) {
					if err != nil {
						logger.Error().Err(err).Msg("Re-validation failed")
						return
					}
					printReport(r)
				})
				if err != nil {
					return err
				}
				<-cmd.Context().Done()
				return nil
			}

			if !report.OK() && strict {
				return faults.NewConfigError(
					fmt.Sprintf("validation failed with %d finding(s)", report.Len()), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero on any validation failure")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate when the config file changes")

	return cmd
}

// validateWithTelemetry runs the validation under a trace span and feeds
// the per-section failure counts into the metrics registry.
func validateWithTelemetry(ctx context.Context) (configcheck.Report, error) {
	tel := telemetry.FromTelemetryContext(ctx)
	if tel == nil {
		return runValidation(configPath)
	}

	_, span := tel.Tracer.StartValidationSpan(ctx, configPath)
	defer span.End()

	report, err := runValidation(configPath)
	if err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}

	tel.Metrics.RecordValidation(sectionFailures(report))
	telemetry.RecordSuccess(span)
	return report, nil
}

// sectionFailures buckets report entries by their leading section name.
func sectionFailures(report configcheck.Report) map[string]int {
	out := make(map[string]int)
	for _, e := range report.Entries() {
		section, _, _ := strings.Cut(e.Field, ".")
		out[section]++
	}
	return out
}

// runValidation loads the config tree and runs the default rules plus the
// operational settings check, merging both into one report.
func runValidation(path string) (configcheck.Report, error) {
	tree, err := configcheck.LoadTree(path)
	if err != nil {
		return configcheck.Report{}, err
	}

	report := configcheck.Validate(tree, configcheck.DefaultRules())
	report.Merge(configcheck.CheckSettings(settingsFromTree(tree)))
	return report, nil
}

// settingsFromTree maps config tree values onto the operational settings,
// falling back to the command-line store path.
func settingsFromTree(tree configcheck.Tree) *configcheck.Settings {
	s := &configcheck.Settings{
		StorePath:   storePath,
		MaxAttempts: 1,
	}
	if v, ok := tree.Lookup("Database.path"); ok && v != "" {
		s.StorePath = v
	}
	if v, ok := tree.Lookup("Logging.level"); ok {
		s.LogLevel = v
	}
	if v, ok := tree.Lookup("Logging.format"); ok {
		s.LogFormat = v
	}
	if v, ok := tree.Lookup("OAuth.max_attempts"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxAttempts = n
		}
	}
	if v, ok := tree.Lookup("Database.busy_timeout_ms"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.BusyTimeoutMS = n
		}
	}
	return s
}

func printReport(report configcheck.Report) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report.Entries())
		return
	}

	if report.OK() {
		fmt.Println("Configuration is valid")
		return
	}
	fmt.Printf("Configuration has %d finding(s):\n%s\n", report.Len(), report.String())
}
