package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/erbridge/erbridge/pkg/flags"
	"github.com/spf13/cobra"
)

func newFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Inspect engine flags",
		Long: `Inspect the flag registry.

Flags are grouped by the kind of operation they apply to. A call only
forwards the bits of its own group to the engine; WITH_INFO is handled by
the SDK and never forwarded.`,
	}

	cmd.AddCommand(newFlagsListCommand())
	cmd.AddCommand(newFlagsEncodeCommand())

	return cmd
}

func newFlagsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [group]",
		Short: "List flags, optionally for one usage group",
		Example: `  # List every flag
  erctl flags list

  # List the flags valid for entity lookups
  erctl flags list entity`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ^uint64(0)
			if len(args) == 1 {
				g, err := flags.ParseUsageGroup(args[0])
				if err != nil {
					return err
				}
				raw = flags.GroupMask(g)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBITS\tGROUPS")
			for _, f := range flags.Decode(raw) {
				groups := make([]string, 0, 4)
				for _, g := range f.Groups() {
					groups = append(groups, g.String())
				}
				fmt.Fprintf(w, "%s\t%#x\t%s\n", f.Name(), f.Bits(), strings.Join(groups, ","))
			}
			return w.Flush()
		},
	}
	return cmd
}

func newFlagsEncodeCommand() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "encode <expression>",
		Short: "Encode a flag expression",
		Example: `  # Encode an expression
  erctl flags encode 'ENTITY_DEFAULT_FLAGS | WITH_INFO'

  # Show what an entity lookup would forward to the engine
  erctl flags encode 'ENTITY_DEFAULT_FLAGS | FIND_PATH_STRICT_AVOID' --group entity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := flags.Parse(args[0])
			if err != nil {
				return err
			}
			if group != "" {
				g, err := flags.ParseUsageGroup(group)
				if err != nil {
					return err
				}
				raw = flags.Downstream(g, raw)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "decimal: %d\n", raw)
			fmt.Fprintf(out, "hex:     %#x\n", raw)
			fmt.Fprintf(out, "flags:   %s\n", flags.Format(raw))
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "mask the result for a usage group")

	return cmd
}
