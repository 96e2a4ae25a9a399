package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain stored OAuth sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the sessions of the configured application",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				c, err := opts.newClient(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)

				records, err := c.Sessions().GetSessionsByApplication(ctx)
				if err != nil {
					return err
				}
				renderSessions(cmd.OutOrStdout(), records, time.Now())
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <resource-id>",
			Short: "Show one stored session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.newClient(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)

				rec, err := c.Sessions().GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no session stored for %s", args[0])
				}
				renderSession(cmd.OutOrStdout(), rec, time.Now())
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <resource-id>",
			Short: "Delete a stored session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.newClient(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)

				if err := c.Sessions().DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				opts.logger.Info().Str("resource_id", args[0]).Msg("session deleted")
				return nil
			},
		},
		newSessionsImportCmd(opts),
	)
	return cmd
}

func newSessionsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import sessions from a JSON array of records",
		Long: `Import sessions from a JSON array of records, for example one exported from
another store. Every record needs a resourceId. A record carrying expire_at keeps that
expiry: expires_in is rewritten to the time remaining at import, and an already expired
record is imported as stale so its first use refreshes it. Records without expire_at get
an expiry from expires_in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := opts.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			now := time.Now()
			for i, rec := range records {
				if rec.ResourceID == "" {
					return fmt.Errorf("record %d has no resourceId", i)
				}
				if err := c.Sessions().SetSession(ctx, rec.ResourceID, withRemainingLifetime(rec, now)); err != nil {
					return err
				}
			}
			opts.logger.Info().Int("count", len(records)).Msg("sessions imported")
			return nil
		},
	}
}

// withRemainingLifetime rewrites ExpiresIn so the store derives the record's exported
// ExpireAt again. Expired records get one second, which is inside the refresh buffer.
func withRemainingLifetime(rec sessions.Record, now time.Time) sessions.Record {
	if rec.ExpireAt.IsZero() {
		return rec
	}
	remaining := int64(math.Ceil(rec.ExpireAt.Sub(now).Seconds()))
	if remaining < 1 {
		remaining = 1
	}
	rec.ExpiresIn = remaining
	return rec
}

func readRecords(stdin io.Reader, path string) ([]sessions.Record, error) {
	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var records []sessions.Record
	if err := json.NewDecoder(in).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return records, nil
}
