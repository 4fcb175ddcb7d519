package commands

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/erbridge/erbridge/pkg/stores"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the failure journal",
		Long: `Inspect the SQLite journal of engine failures and instance lifecycle
transitions. The journal is written when --journal (or journal in the config
file) is set.`,
	}

	cmd.AddCommand(newJournalFailuresCommand())
	cmd.AddCommand(newJournalSummaryCommand())
	cmd.AddCommand(newJournalLifecycleCommand())
	cmd.AddCommand(newJournalPurgeCommand())

	return cmd
}

// openJournal opens the configured journal without building an instance.
func openJournal(cmd *cobra.Command) (*stores.SQLiteStore, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	if opts.journal == "" {
		return nil, errors.New("no journal: set --journal or journal in the config file")
	}
	return stores.Open(cmd.Context(), opts.journal)
}

func newJournalFailuresCommand() *cobra.Command {
	var (
		instance string
		kind     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List journaled failures, newest first",
		Example: `  # Last 20 failures
  erctl journal failures --journal erbridge.db

  # Not-found failures of one instance
  erctl journal failures --kind not_found --instance 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := stores.FailureFilter{Limit: limit}
			if instance != "" {
				filter.InstanceID = &instance
			}
			if kind != "" {
				filter.Kind = &kind
			}
			records, err := store.ListFailures(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tFACADE\tKIND\tCODE\tOPERATION\tMESSAGE")
			for _, r := range records {
				code := "-"
				if r.Code != nil {
					code = fmt.Sprint(*r.Code)
				}
				signature := "-"
				if r.Signature != nil {
					signature = *r.Signature
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Timestamp.Format(time.RFC3339), r.Facade, r.Kind, code, signature, r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&instance, "instance-id", "", "only failures of this instance ID")
	cmd.Flags().StringVar(&kind, "kind", "", "only failures of this kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows, 0 for all")

	return cmd
}

func newJournalSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [instance-id]",
		Short: "Count journaled failures by kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var instanceID *string
			if len(args) == 1 {
				instanceID = &args[0]
			}
			counts, err := store.CountFailuresByKind(cmd.Context(), instanceID)
			if err != nil {
				return err
			}

			kinds := make([]string, 0, len(counts))
			for kind := range counts {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tCOUNT")
			for _, kind := range kinds {
				fmt.Fprintf(w, "%s\t%d\n", kind, counts[kind])
			}
			return w.Flush()
		},
	}
}

func newJournalLifecycleCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "lifecycle [instance-id]",
		Short: "List instance lifecycle transitions, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var instanceID *string
			if len(args) == 1 {
				instanceID = &args[0]
			}
			records, err := store.ListLifecycle(cmd.Context(), instanceID, limit, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tINSTANCE\tSTATE\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.InstanceID, r.State, r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows, 0 for all")

	return cmd
}

func newJournalPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete journal rows older than a duration",
		Example: `  erctl journal purge --older-than 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PurgeBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.Info().Int64("rows", n).Dur("older_than", olderThan).Msg("Journal purged")
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of rows to delete")

	return cmd
}
