package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/errors"
)

// Execute runs the tagsync CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tagsync",
		Short:   "Equipment tag reconciliation between drawings and the equipment database",
		Version: a.version,
		Long: `tagsync keeps the equipment drawn in CAD drawings and the equipment
database in agreement.

It extracts equipment blocks from a drawing, classifies them using rules
and mappings learned from earlier passes, assigns tag numbers under the
project's tag format and merges both sides in the direction you choose.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})

	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands:",
	})

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.tagsync.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, json, yaml, wide")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.String("store-driver", "", "system of record: sqlite, postgres or memory")
	flags.String("store-dsn", "", "database file or connection string")
	flags.String("mappings", "", "learned block mappings file")

	rootCmd.SetVersionTemplate("tagsync {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("config") {
		config, err := LoadConfigFile(mustGetString(cmd, "config"))
		if err != nil {
			return err
		}
		a.config = config
	}

	a.config.UpdateFromFlags(
		mustGetBool(cmd, "verbose"),
		mustGetBool(cmd, "quiet"),
		mustGetBool(cmd, "no-color"),
		mustGetString(cmd, "format"),
		mustGetString(cmd, "log-level"),
	)

	if cmd.Flags().Changed("store-driver") {
		a.config.StoreDriver = mustGetString(cmd, "store-driver")
	}
	if cmd.Flags().Changed("store-dsn") {
		a.config.StoreDSN = mustGetString(cmd, "store-dsn")
	}
	if cmd.Flags().Changed("mappings") {
		a.config.MappingsPath = mustGetString(cmd, "mappings")
	}

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return errors.NewValidationError("format", a.config.Format, err.Error())
	}
	if err := a.config.Validate(); err != nil {
		return err
	}

	// Reinitialize logger with updated config
	logger := NewLogger(a.config)
	a.logger = &logger

	return nil
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
