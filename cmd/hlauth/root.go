package main

import (
	"context"
	"os"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/client"
	"github.com/jrsteele09/go-highlevel-auth/internal/bootstrap"
	"github.com/jrsteele09/go-highlevel-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
	banner     bool
	jsonLogs   bool

	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Manage HighLevel OAuth sessions and resolve API credentials",
		Long: `hlauth inspects and maintains the OAuth sessions stored for a HighLevel
marketplace application and shows which credential an API call would be sent with.

Settings come from HL_* environment variables, an optional .env file and an
optional YAML file; environment variables win.

Examples:
  hlauth sessions list
  hlauth oauth exchange --code <code> --user-type Company
  hlauth token resolve --security Location-Access-Only --location-id <id>
  hlauth token refresh <location-id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd.Flags().Changed("env-file"))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.GetEnv("HLAUTH_CONFIG", ""), "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVar(&opts.banner, "banner", false, "print the application banner")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "write logs as JSON instead of console output")

	cmd.AddCommand(
		newSessionsCmd(opts),
		newTokenCmd(opts),
		newOAuthCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load(envFileRequired bool) error {
	if err := config.LoadEnvFile(o.envFile, envFileRequired); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	if o.jsonLogs {
		o.logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		o.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()
	}
	log.Logger = o.logger

	if o.banner {
		displayAppname(appName)
	}
	return nil
}

// newClient builds a client over the configured session store. The caller closes it.
func (o *rootOptions) newClient(ctx context.Context) (*client.Client, error) {
	return bootstrap.NewClient(ctx, o.cfg, o.logger)
}
