package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Resolve and refresh API credentials",
	}
	cmd.AddCommand(newTokenResolveCmd(opts), newTokenRefreshCmd(opts))
	return cmd
}

func newTokenResolveCmd(opts *rootOptions) *cobra.Command {
	var (
		security   []string
		companyID  string
		locationID string
		reveal     bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the Authorization value a request would be sent with",
		Long: `Resolve the credential for an API operation declaring the given security
requirements (bearer, Agency-Access, Location-Access, Agency-Access-Only,
Location-Access-Only). Without --security only stored sessions are considered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			headers := http.Header{}
			if companyID != "" {
				headers.Set("x-company-id", companyID)
			}
			query := url.Values{}
			if locationID != "" {
				query.Set("locationId", locationID)
			}

			value, err := c.Resolve(ctx, security, headers, query, nil)
			if err != nil {
				return err
			}
			if value == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no credential")
				return nil
			}
			if !reveal {
				value = "Bearer " + mask(value[len("Bearer "):])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&security, "security", nil, "security requirements declared by the operation")
	cmd.Flags().StringVar(&companyID, "company-id", "", "company the request targets")
	cmd.Flags().StringVar(&locationID, "location-id", "", "location the request targets")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full token")
	return cmd
}

func newTokenRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <resource-id>",
		Short: "Refresh a stored session now, regardless of its expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			token, err := c.Coordinator().Refresh(ctx, args[0])
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("session %s cannot be refreshed: missing session, refresh token or client credentials", args[0])
			}
			opts.logger.Info().Str("resource_id", args[0]).Msg("session refreshed")
			return nil
		},
	}
}
