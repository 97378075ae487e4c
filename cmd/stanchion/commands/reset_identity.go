package commands

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stanchionhq/stanchion/pkg/progress"
	"github.com/stanchionhq/stanchion/pkg/stores"
	"github.com/stanchionhq/stanchion/pkg/telemetry"
)

func newResetIdentityCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reset-identity",
		Short: "Generate and store a fresh machine identity",
		Long: `Generate a fresh set of machine identifiers and replace the stored
identity in a single transaction.

Identifiers:
  - machine_id: SHA-256 hex digest of random bytes
  - device_id: lowercase UUID
  - sqm_id: uppercase braced UUID

The replacement is atomic: either all three identifiers are swapped or
the previous identity is left untouched.`,
		Example: `  # Replace the stored identity
  stanchion reset-identity

  # Show what would be generated without writing
  stanchion reset-identity --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cmdLogger("reset-identity")

			sink := progress.NewLogSink(logger, "reset identity", 4, 25)

			identity, err := generateIdentity()
			if err != nil {
				return err
			}
			sink.Add(3) // one unit per generated identifier

			if dryRun {
				sink.Done()
				fmt.Printf("machine_id: %s\ndevice_id: %s\nsqm_id: %s\n",
					identity.MachineID, identity.DeviceID, identity.SQMID)
				return nil
			}

			if err := ensureStore(ctx, storePath); err != nil {
				return err
			}

			err = telemetry.RecordTxScope(ctx, storePath, func(ctx context.Context) error {
				_, werr := stores.WithTx(ctx, storePath, func(tx stores.Tx) (struct{}, error) {
					return struct{}{}, stores.ReplaceIdentity(ctx, tx, identity)
				}, stores.WithTxLogger(logger))
				return werr
			})
			if err != nil {
				return err
			}
			sink.Add(1)
			sink.Done()

			logger.Info().
				Str("machine_id", identity.MachineID).
				Msg("Machine identity replaced")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate identifiers without storing them")

	return cmd
}

// generateIdentity builds a full set of fresh machine identifiers.
func generateIdentity() (*stores.MachineIdentity, error) {
	machineID, err := randomHexDigest()
	if err != nil {
		return nil, err
	}

	return &stores.MachineIdentity{
		MachineID: machineID,
		DeviceID:  uuid.NewString(),
		SQMID:     "{" + strings.ToUpper(uuid.NewString()) + "}",
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// randomHexDigest returns the SHA-256 hex digest of 32 random bytes.
func randomHexDigest() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
