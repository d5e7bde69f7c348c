package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/metricsd/internal/cli/ui"
	"github.com/conduit-lang/metricsd/internal/metrics/fields"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the derived metrics catalog",
	}
	cmd.AddCommand(newCatalogListCommand(opts))
	cmd.AddCommand(newCatalogShowCommand(opts))
	return cmd
}

func newCatalogListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List derived metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := fields.NewDefaultCatalog()

			table := ui.NewTable(cmd.OutOrStdout(), []string{"NAME", "UNIT", "RESULT", "METRICS"}, opts.noColor)
			for _, name := range catalog.Names() {
				dm, _ := catalog.Get(name)
				table.AddRow(dm.MetricName, dm.Unit, dm.ResultType, strings.Join(dm.Metrics, ", "))
			}
			table.Render()
			return nil
		},
	}
}

func newCatalogShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <metric>",
		Short: "Show a derived metric and the order its dependencies are computed in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := fields.NewDefaultCatalog()
			name := args[0]

			dm, ok := catalog.Get(name)
			if !ok {
				suggestions := ui.FindSimilar(name, catalog.Names(), nil)
				fmt.Fprint(cmd.ErrOrStderr(), ui.MetricNotFoundError(name, suggestions, opts.noColor))
				return fmt.Errorf("%s is not a derived metric", name)
			}

			order, err := fields.NewTraverser(catalog, nil, nil).TopoOrder(name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := ui.NewKeyValueTable(out, opts.noColor)
			table.AddRow("Name", dm.MetricName)
			table.AddRow("Unit", dm.Unit)
			table.AddRow("Result", dm.ResultType)
			table.AddRow("Metrics", strings.Join(dm.Metrics, ", "))
			table.Render()

			fmt.Fprintln(out)
			ui.Header(out, "Evaluation order", opts.noColor)
			ui.NumberedList(out, order, opts.noColor)
			return nil
		},
	}
}
