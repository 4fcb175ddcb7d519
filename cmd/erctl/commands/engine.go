package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newEntityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Query resolved entities",
	}

	cmd.AddCommand(newEntityGetCommand())
	cmd.AddCommand(newEntityExportCommand())

	return cmd
}

func newEntityGetCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "get <entity-id | data-source:record-id>",
		Short: "Show an entity",
		Example: `  # By entity ID
  erctl entity get 42

  # By one of its records
  erctl entity get CUSTOMERS:1001 --flags 'ENTITY_DEFAULT_FLAGS | ENTITY_INCLUDE_RECORD_DATA'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				engine, err := s.inst.Engine(ctx)
				if err != nil {
					return err
				}

				var doc string
				if ds, id, ok := strings.Cut(args[0], ":"); ok {
					doc, err = engine.GetEntityByRecordID(ctx, ds, id, fl)
				} else {
					entityID, perr := strconv.ParseInt(args[0], 10, 64)
					if perr != nil {
						return fmt.Errorf("invalid entity ID %q: %w", args[0], perr)
					}
					doc, err = engine.GetEntityByEntityID(ctx, entityID, fl)
				}
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}

	addFlagsOption(cmd, &expr, "ENTITY_DEFAULT_FLAGS")

	return cmd
}

func newEntityExportCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every entity as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				engine, err := s.inst.Engine(ctx)
				if err != nil {
					return err
				}

				var n int
				out := cmd.OutOrStdout()
				err = engine.ExportEntities(ctx, fl, func(line string) error {
					n++
					_, err := fmt.Fprint(out, line)
					return err
				})
				log.Debug().Int("entities", n).Msg("Export finished")
				return err
			})
		},
	}

	addFlagsOption(cmd, &expr, "EXPORT_DEFAULT_FLAGS")

	return cmd
}

func newRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Load, show and delete records",
	}

	cmd.AddCommand(newRecordAddCommand())
	cmd.AddCommand(newRecordGetCommand())
	cmd.AddCommand(newRecordDeleteCommand())

	return cmd
}

func newRecordAddCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "add <data-source> <record-id> <file>",
		Short: "Add or replace a record",
		Long: `Add or replace a record from a JSON file. Use "-" to read standard input.

With WITH_INFO in --flags the entities affected by the change are printed.`,
		Example: `  erctl record add CUSTOMERS 1001 customer.json --flags WITH_INFO`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			definition, err := readInput(cmd, args[2])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				engine, err := s.inst.Engine(cmd.Context())
				if err != nil {
					return err
				}
				info, err := engine.AddRecord(cmd.Context(), args[0], args[1], definition, fl)
				if err != nil {
					return err
				}
				if info == "" {
					log.Info().Str("data_source", args[0]).Str("record_id", args[1]).Msg("Record added")
					return nil
				}
				return printDocument(cmd.OutOrStdout(), info)
			})
		},
	}

	addFlagsOption(cmd, &expr, "")

	return cmd
}

func newRecordGetCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "get <data-source> <record-id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				engine, err := s.inst.Engine(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := engine.GetRecord(cmd.Context(), args[0], args[1], fl)
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}

	addFlagsOption(cmd, &expr, "RECORD_DEFAULT_FLAGS")

	return cmd
}

func newRecordDeleteCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "delete <data-source> <record-id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				engine, err := s.inst.Engine(cmd.Context())
				if err != nil {
					return err
				}
				info, err := engine.DeleteRecord(cmd.Context(), args[0], args[1], fl)
				if err != nil {
					return err
				}
				if info == "" {
					log.Info().Str("data_source", args[0]).Str("record_id", args[1]).Msg("Record deleted")
					return nil
				}
				return printDocument(cmd.OutOrStdout(), info)
			})
		},
	}

	addFlagsOption(cmd, &expr, "")

	return cmd
}

func newSearchCommand() *cobra.Command {
	var (
		expr    string
		profile string
	)

	cmd := &cobra.Command{
		Use:   "search <attributes-file>",
		Short: "Search entities by attributes",
		Example: `  erctl search query.json
  echo '{"NAME_FULL":"Robert Smith"}' | erctl search -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl, err := parseFlagsOption(expr)
			if err != nil {
				return err
			}
			attributes, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				engine, err := s.inst.Engine(cmd.Context())
				if err != nil {
					return err
				}
				doc, err := engine.SearchByAttributes(cmd.Context(), attributes, profile, fl)
				if err != nil {
					return err
				}
				return printDocument(cmd.OutOrStdout(), doc)
			})
		},
	}

	addFlagsOption(cmd, &expr, "SEARCH_BY_ATTRIBUTES_DEFAULT_FLAGS")
	cmd.Flags().StringVar(&profile, "profile", "", "search profile")

	return cmd
}

// readInput reads a file, or standard input for "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
