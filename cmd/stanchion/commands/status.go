package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanchionhq/stanchion/pkg/stores"
	"github.com/stanchionhq/stanchion/pkg/telemetry"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sessions, machine identity, and usage counters",
		Long: `Show the current contents of the state store:

  - Stored account sessions and their expiry
  - The machine identity (machine, device, and SQM identifiers)
  - Usage counters and their limits`,
		Example: `  # Show status from the default store
  stanchion status

  # Show status from a specific store as JSON
  stanchion status --store ./state.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cmdLogger("status")

			store, err := openStore(ctx, storePath)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn().Err(cerr).Msg("Failed to close store")
				}
			}()

			var sessions []*stores.Session
			err = telemetry.RecordStoreCall(ctx, "list_sessions", func(ctx context.Context) error {
				sessions, err = store.ListSessions(ctx)
				return err
			})
			if err != nil {
				return err
			}

			var identity *stores.MachineIdentity
			err = telemetry.RecordStoreCall(ctx, "get_identity", func(ctx context.Context) error {
				identity, err = store.GetIdentity(ctx)
				return err
			})
			if err != nil && !isNotFound(err) {
				return err
			}

			var usage *stores.UsageCounter
			err = telemetry.RecordStoreCall(ctx, "get_usage", func(ctx context.Context) error {
				usage, err = store.GetUsage(ctx, "token_requests")
				return err
			})
			if err != nil && !isNotFound(err) {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"sessions": sessions,
					"identity": identity,
					"usage":    usage,
				})
			}

			printStatus(sessions, identity, usage)
			return nil
		},
	}

	return cmd
}

// isNotFound distinguishes an empty store from a real failure. Missing
// rows surface as database-kind errors wrapping sql.ErrNoRows.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func printStatus(sessions []*stores.Session, identity *stores.MachineIdentity, usage *stores.UsageCounter) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Sessions (%d):\n", len(sessions))
	for _, s := range sessions {
		expiry := "never"
		if s.ExpiresAt != nil {
			expiry = s.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "\t%s\texpires: %s\tupdated: %s\n",
			s.Account, expiry, s.UpdatedAt.Format(time.RFC3339))
	}

	if identity != nil {
		fmt.Fprintln(w, "Machine identity:")
		fmt.Fprintf(w, "\tmachine_id:\t%s\n", identity.MachineID)
		fmt.Fprintf(w, "\tdevice_id:\t%s\n", identity.DeviceID)
		fmt.Fprintf(w, "\tsqm_id:\t%s\n", identity.SQMID)
	} else {
		fmt.Fprintln(w, "Machine identity: not set")
	}

	if usage != nil {
		fmt.Fprintf(w, "Usage:\n\t%s:\t%d / %d\n", usage.Name, usage.Used, usage.Limit)
	}
}
