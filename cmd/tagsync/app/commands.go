package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/cmd/tagsync/cmd/extract"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/mappings"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/preview"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/project"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/status"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/sync"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/tag"
	"github.com/agentstation/tagsync/cmd/tagsync/cmd/validate"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(preview.NewCommand(a))
	rootCmd.AddCommand(extract.NewCommand(a))
	rootCmd.AddCommand(tag.NewCommand(a))
	rootCmd.AddCommand(sync.NewCommand(a))
	rootCmd.AddCommand(status.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(project.NewCommand(a))
	rootCmd.AddCommand(mappings.NewCommand(a))
	rootCmd.AddCommand(validate.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(a.newVersionCommand())
}

// newVersionCommand creates the version command.
func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("tagsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
