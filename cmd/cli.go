package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/habedi/monitorctl/client"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	baseURL string
	timeout time.Duration
	envFile string
}

// Execute runs the root command and exits with a status derived from the error type.
func Execute() {
	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")
	rootCmd.SetOut(os.Stdout)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(reportError(rootCmd, err))
	}
}

func createRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "monitorctl",
		Short:         "A command-line client for the server monitoring backend",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides MONITORCTL_BASE_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout, e.g. 5s (overrides MONITORCTL_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load settings from this .env file instead of ./.env")

	authCommand := authCmd(opts)
	rootCmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		registerCmd(opts),
		whoamiCmd(opts),
		authCommand,
		userCmd(opts),
		serverCmd(opts),
		monitorCmd(opts),
		sftpCmd(opts),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// reportError prints err for the user and returns the exit code.
func reportError(cmd *cobra.Command, err error) int {
	cliErr := clierr.FromAPI("command failed", err)
	// The notifier has already told the user their session ended.
	if !errors.Is(err, client.ErrSessionExpired) {
		cmd.PrintErrln("Error:", cliErr.Message)
	}
	return cliErr.ExitCode()
}
