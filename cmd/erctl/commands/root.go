package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	settingsArg  string
	instanceName string
	verbose      bool
	configID     int64
	workers      int
	enginePath   string
	journalPath  string
	redact       bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "erctl",
		Short: "erctl - entity resolution engine control",
		Long: `erctl drives an entity resolution engine through the erbridge SDK.

Every command builds a provider instance, binds the facades it needs and
destroys the instance before exiting. Engine failures are reported with their
native code, the failing operation and its parameters, and can be journaled
to SQLite for later inspection.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&settingsArg, "settings", "", "engine settings JSON or a path to a settings file")
	rootCmd.PersistentFlags().StringVar(&instanceName, "instance", "", "provider instance name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose engine logging")
	rootCmd.PersistentFlags().Int64Var(&configID, "config-id", 0, "initialize the engine with this configuration ID")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "dispatcher worker count")
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "engine module manifest path")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "SQLite failure journal path")
	rootCmd.PersistentFlags().BoolVar(&redact, "redact", false, "redact parameter values in failures")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newLicenseCommand())
	rootCmd.AddCommand(newFlagsCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newEntityCommand())
	rootCmd.AddCommand(newRecordCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
