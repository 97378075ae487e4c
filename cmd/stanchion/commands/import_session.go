package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/stanchionhq/stanchion/pkg/faults"
	"github.com/stanchionhq/stanchion/pkg/retry"
	"github.com/stanchionhq/stanchion/pkg/stores"
	"github.com/stanchionhq/stanchion/pkg/telemetry"
)

func newImportSessionCommand() *cobra.Command {
	var (
		account      string
		tokenFile    string
		refreshToken string
		expiresIn    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "import-session",
		Short: "Import an account session from a token file",
		Long: `Import an account session into the state store.

The access token is read from a file. The store write runs inside a
transaction and is retried with exponential backoff when the store is
busy, so a concurrent reader does not make the import fail.`,
		Example: `  # Import a session for an account
  stanchion import-session --account alice@example.com --token-file ./token.txt

  # Import with a refresh token and a one-hour expiry
  stanchion import-session --account alice@example.com --token-file ./token.txt \
    --refresh-token xyz --expires-in 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cmdLogger("import-session")

			token, err := readTokenFile(tokenFile)
			if err != nil {
				return dispatchError(err)
			}

			if err := ensureStore(ctx, storePath); err != nil {
				return dispatchError(err)
			}

			session := &stores.Session{
				ID:           uuid.NewString(),
				Account:      account,
				AccessToken:  token,
				RefreshToken: refreshToken,
			}
			if expiresIn > 0 {
				t := time.Now().UTC().Add(expiresIn)
				session.ExpiresAt = &t
			}

			// Contended stores surface busy errors as database-kind
			// failures; those are the only ones worth retrying.
			policy := retry.Policy{
				MaxAttempts:  5,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     2 * time.Second,
				Multiplier:   2,
				RetryOn:      []faults.Kind{faults.KindDatabase},
			}

			retryOpts := []retry.Option{retry.WithLogger(logger)}
			tel := telemetry.FromTelemetryContext(ctx)
			var span trace.Span
			if tel != nil {
				ctx, span = tel.Tracer.StartRetrySpan(ctx, "import_session", policy.MaxAttempts)
				retryOpts = append(retryOpts, retry.WithObserver(tel.Metrics))
			}

			_, err = retry.Execute(ctx, policy, func() (struct{}, error) {
				return struct{}{}, telemetry.RecordTxScope(ctx, storePath, func(ctx context.Context) error {
					_, werr := stores.WithTx(ctx, storePath, func(tx stores.Tx) (struct{}, error) {
						return struct{}{}, stores.PutSession(ctx, tx, session)
					}, stores.WithTxLogger(logger))
					return werr
				})
			}, retryOpts...)
			if tel != nil {
				if err != nil {
					// The whitelist only admits database failures, so a
					// database-kind error here means attempts ran out.
					if faults.HasKind(err, faults.KindDatabase) {
						tel.Metrics.RecordRetryExhaustion(err)
					}
					telemetry.RecordError(span, err)
				} else {
					telemetry.RecordSuccess(span)
				}
				span.End()
			}
			if err != nil {
				return dispatchError(err)
			}

			logger.Info().
				Str("account", account).
				Msg("Session imported")
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account the session belongs to")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "file containing the access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "optional refresh token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "session lifetime from now (0 = no expiry)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("token-file")

	return cmd
}

// readTokenFile reads and trims the access token, reporting failures as
// file-operation errors.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", faults.NewFileOpError("failed to read token file: "+path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", faults.NewFileOpError("token file is empty: "+path, nil)
	}
	return token, nil
}

// dispatchError maps fault kinds to user-facing recovery hints. Recovery
// is chosen by kind alone, never by message inspection.
func dispatchError(err error) error {
	switch {
	case faults.HasKind(err, faults.KindAuth):
		return fmt.Errorf("%w\nlog in again and retry the import", err)
	case faults.HasKind(err, faults.KindConfig):
		return fmt.Errorf("%w\nrun 'stanchion validate' to inspect the configuration", err)
	case faults.HasKind(err, faults.KindFileOp):
		return fmt.Errorf("%w\ncheck the token file path and permissions", err)
	default:
		return err
	}
}
