package commands

import (
	"fmt"
	"strconv"

	"github.com/erbridge/erbridge/pkg/config"
	"github.com/erbridge/erbridge/pkg/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage engine configurations",
		Long: `Inspect and manage the configurations registered with the engine.

A configuration defines, among other things, the data sources records can
be loaded into. The default configuration is the one the engine initializes
with unless --config-id is given.`,
	}

	cmd.AddCommand(newConfigDataSourcesCommand())
	cmd.AddCommand(newConfigListCommand())
	cmd.AddCommand(newConfigDefaultCommand())
	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigDataSourcesCommand() *cobra.Command {
	var add []string

	cmd := &cobra.Command{
		Use:   "datasources [config-id]",
		Short: "List or add data sources",
		Long: `List the data sources of a configuration, the default one unless an ID
is given. With --add, the data sources are added to a copy of the
configuration, the copy is registered and made the default.`,
		Example: `  # List data sources of the default configuration
  erctl config datasources

  # Add two data sources and make the result the default
  erctl config datasources --add CUSTOMERS --add WATCHLIST`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				manager, err := s.inst.ConfigManager(ctx)
				if err != nil {
					return err
				}
				cfg, err := s.inst.Config(ctx)
				if err != nil {
					return err
				}

				var id int64
				if len(args) == 1 {
					if id, err = strconv.ParseInt(args[0], 10, 64); err != nil {
						return fmt.Errorf("invalid config ID %q: %w", args[0], err)
					}
				} else if id, err = manager.GetDefaultConfigID(ctx); err != nil {
					return err
				}
				definition, err := manager.GetConfig(ctx, id)
				if err != nil {
					return err
				}

				var sources, updated string
				err = cfg.WithConfig(ctx, definition, func(h provider.ConfigHandle) error {
					for _, code := range add {
						if _, err := cfg.AddDataSource(ctx, h, code); err != nil {
							return err
						}
					}
					if len(add) > 0 {
						if updated, err = cfg.ExportConfig(ctx, h); err != nil {
							return err
						}
					}
					sources, err = cfg.GetDataSources(ctx, h)
					return err
				})
				if err != nil {
					return err
				}

				if updated != "" {
					newID, err := manager.AddConfig(ctx, updated, fmt.Sprintf("erctl: added %v", add))
					if err != nil {
						return err
					}
					if err := manager.ReplaceDefaultConfigID(ctx, id, newID); err != nil {
						return err
					}
					log.Info().
						Int64("previous", id).
						Int64("config_id", newID).
						Strs("added", add).
						Msg("Registered new default configuration")
				}
				return printDocument(cmd.OutOrStdout(), sources)
			})
		},
	}

	cmd.Flags().StringSliceVar(&add, "add", nil, "data source codes to add")

	return cmd
}

func newConfigListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				manager, err := s.inst.ConfigManager(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := manager.GetConfigs(cmd.Context())
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}
}

func newConfigDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default [config-id]",
		Short: "Show or set the default configuration",
		Example: `  # Show the default configuration ID
  erctl config default

  # Make configuration 1002 the default
  erctl config default 1002`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				manager, err := s.inst.ConfigManager(ctx)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					id, err := manager.GetDefaultConfigID(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				}

				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid config ID %q: %w", args[0], err)
				}
				if err := manager.SetDefaultConfigID(ctx, id); err != nil {
					return err
				}
				log.Info().Int64("config_id", id).Msg("Default configuration set")
				return nil
			})
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate a configuration document without contacting the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if err := config.NewSchemaRegistry().ValidateEngineConfig(cmd.Context(), definition); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}
