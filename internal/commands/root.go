package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/buildinfo"
	"github.com/cleared-dev/ledger/internal/model"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	dir   string
	actor int64
}

func (g *globals) Actor() model.Actor {
	return model.Actor(g.actor)
}

// open wires the ledger for the --dir project.
func (g *globals) open() (*app, error) {
	return openApp(g.dir)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry ledger core",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "ledger project directory")
	rootCmd.PersistentFlags().Int64Var(&g.actor, "actor", 0, "user ID recorded on changes (0 = system)")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newAccountCommand(g))
	rootCmd.AddCommand(newTxnCommand(g))
	rootCmd.AddCommand(newRecurringCommand(g))
	rootCmd.AddCommand(newFXCommand(g))
	rootCmd.AddCommand(newScheduleCommand(g))

	return rootCmd
}
