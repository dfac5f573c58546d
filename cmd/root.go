package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the voicetextpro calendar service
var rootCmd = &cobra.Command{
	Use:   "voicetextpro-calendar",
	Short: "Calendar account linking and event access for VoiceTextPro",
	Long: `voicetextpro-calendar manages third-party calendar credentials for the
VoiceTextPro platform: users link their Google Calendar account once, and
the service keeps the OAuth credentials encrypted at rest, refreshes them
transparently, and serves normalized calendar events to the rest of the
platform.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "voicetextpro-calendar version %s\n" .Version}}`)

	// If no subcommand is provided, run the server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}
