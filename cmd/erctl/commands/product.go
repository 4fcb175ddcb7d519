package commands

import (
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the engine version",
		Long: `Show the version document reported by the engine.

The version of erctl itself is printed by --version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				product, err := s.inst.Product(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := product.GetVersion(cmd.Context())
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}
}

func newLicenseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "license",
		Short: "Show the engine license",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				product, err := s.inst.Product(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := product.GetLicense(cmd.Context())
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}
}
