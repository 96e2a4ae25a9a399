package main

import (
	"time"

	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/spf13/cobra"
)

func newOAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Run OAuth grants against HighLevel and store the resulting sessions",
	}
	cmd.AddCommand(newOAuthExchangeCmd(opts), newOAuthLocationTokenCmd(opts))
	return cmd
}

func newOAuthExchangeCmd(opts *rootOptions) *cobra.Command {
	var (
		code     string
		userType string
	)
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an installation authorization code for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			rec, err := c.ExchangeCode(ctx, code, oauthmodel.UserType(userType))
			if err != nil {
				return err
			}
			renderSession(cmd.OutOrStdout(), rec, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code from the install redirect")
	cmd.Flags().StringVar(&userType, "user-type", string(oauthmodel.DefaultUserType), "Company or Location")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newOAuthLocationTokenCmd(opts *rootOptions) *cobra.Command {
	var companyID, locationID string
	cmd := &cobra.Command{
		Use:   "location-token",
		Short: "Mint a location session from an agency session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			rec, err := c.ExchangeLocationToken(ctx, companyID, locationID)
			if err != nil {
				return err
			}
			renderSession(cmd.OutOrStdout(), rec, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company-id", "", "agency company id")
	cmd.Flags().StringVar(&locationID, "location-id", "", "location to mint a token for")
	_ = cmd.MarkFlagRequired("company-id")
	_ = cmd.MarkFlagRequired("location-id")
	return cmd
}
