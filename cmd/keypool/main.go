// Command keypool runs the content pipeline against an owner's pool of upstream
// credentials and manages that pool.
//
// Usage:
//
//	keypool migrate
//	keypool keys add --owner owner-1 --provider gemini --secret "$GEMINI_KEY"
//	keypool keys list --owner owner-1 --provider gemini
//	keypool probe --owner owner-1 --provider gemini
//	keypool run --owner owner-1 --provider gemini --topic "Mortgage calculator"
//
// Settings come from the file given with --config and KEYPOOL_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	app *App
)

var rootCmd = &cobra.Command{
	Use:           "keypool",
	Short:         "Run content pipelines over a rotating pool of upstream credentials",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := NewApp(configPath, logLevel, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		app = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(runCmd, keysCmd, probeCmd, migrateCmd)
}

func main() {
	err := rootCmd.Execute()
	if app != nil {
		app.Close(context.Background())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
