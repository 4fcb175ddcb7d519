package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newCheckCommand() *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the engine and its datastore",
		Long: `Check that the engine initializes and that its datastore responds.

The version, datastore description and insert benchmark are collected
concurrently; the dispatcher bounds how many reach the engine at once.`,
		Example: `  # Quick check
  erctl check

  # Run the insert benchmark for ten seconds on four workers
  erctl check --seconds 10 --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seconds < 1 {
				return fmt.Errorf("--seconds must be at least 1")
			}
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				product, err := s.inst.Product(ctx)
				if err != nil {
					return err
				}
				diagnostic, err := s.inst.Diagnostic(ctx)
				if err != nil {
					return err
				}

				var version, info, perf string
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() (err error) {
					version, err = product.GetVersion(gctx)
					return err
				})
				g.Go(func() (err error) {
					info, err = diagnostic.GetDatastoreInfo(gctx)
					return err
				})
				g.Go(func() (err error) {
					perf, err = diagnostic.CheckDatastorePerformance(gctx, seconds)
					return err
				})
				if err := g.Wait(); err != nil {
					return err
				}

				log.Info().
					Str("instance", s.inst.ID()).
					Int("workers", s.inst.Workers()).
					Msg("Engine check passed")

				out := cmd.OutOrStdout()
				for _, section := range []struct{ title, doc string }{
					{"version", version},
					{"datastore", info},
					{"performance", perf},
				} {
					fmt.Fprintf(out, "# %s\n", section.title)
					if err := printDocument(out, section.doc); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&seconds, "seconds", 3, "insert benchmark duration")

	return cmd
}
