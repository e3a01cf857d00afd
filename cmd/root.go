package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailrelay/internal/config"
	"github.com/teemow/gmailrelay/internal/logging"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	debug      bool
	configPath string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "gmailrelay",
		Short: "Relay email through Gmail on behalf of an OAuth-authorized user",
		Long: `gmailrelay sends HTML email through the Gmail API as a user who has
authorized it with Google OAuth 2.0.

It can run as:
  - The relay backend (serve)
  - A client of that backend (auth, exchange, send, status, logout)`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "gmailrelay version %s\n" .Version}}`)

	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a TOML config file. Can also use GMAILRELAY_CONFIG env var.")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newAuthCmd(flags))
	cmd.AddCommand(newExchangeCmd(flags))
	cmd.AddCommand(newSendCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newLogoutCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// logger returns the process logger on stderr and installs it as the slog
// default.
func (f *globalFlags) logger() *slog.Logger {
	l := logging.New(os.Stderr, f.debug)
	slog.SetDefault(l)
	return l
}

// loadConfig reads the config file and environment. Flags are applied by
// the caller.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	return config.Load(f.configPath)
}
