package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/metricsd/internal/cli/ui"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/orm"
)

func newMetaCommand(opts *rootOptions) *cobra.Command {
	var (
		orgID      int64
		projectIDs []int64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "meta [metric]",
		Short: "Show the metadata of a metric",
		Long: `Show the type, unit, operations and tag keys of a metric over the last
24 hours of an organization's projects. Without a metric name an interactive
prompt suggests the derived metrics.`,
		Example: `  metricsd meta crash_free_percentage --org 1
  metricsd meta session.duration --org 1 --project 2 --project 3 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := opts.newServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else if name, err = opts.askMetric(svc.Catalog.Names()); err != nil {
				return err
			}

			projects, err := svc.Projects.GetProjects(cmd.Context(), orgID, projectIDs)
			if err != nil {
				if orm.IsNotFound(err) {
					return fmt.Errorf("organization %d has no such projects: %w", orgID, err)
				}
				return err
			}

			var meta metrics.MetricMetaWithTagKeys
			err = ui.WithSpinner(cmd.ErrOrStderr(), "Querying "+name, opts.noColor, func() error {
				var queryErr error
				meta, queryErr = svc.Metrics.GetSingleMetricInfo(cmd.Context(), projects, name)
				return queryErr
			})
			if err != nil {
				if metrics.IsInvalidParams(err) {
					suggestions := ui.FindSimilar(name, svc.Catalog.Names(), nil)
					fmt.Fprint(cmd.ErrOrStderr(), ui.MetricNotFoundError(name, suggestions, opts.noColor))
				}
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(meta)
			}
			writeMeta(cmd, meta, opts.noColor)
			return nil
		},
	}

	cmd.Flags().Int64Var(&orgID, "org", 0, "organization id")
	cmd.Flags().Int64SliceVarP(&projectIDs, "project", "p", nil, "project ids (default all projects of the organization)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.MarkFlagRequired("org")

	return cmd
}

func writeMeta(cmd *cobra.Command, meta metrics.MetricMetaWithTagKeys, noColor bool) {
	unit := "-"
	if meta.Unit != nil {
		unit = *meta.Unit
	}
	tags := make([]string, 0, len(meta.Tags))
	for _, tag := range meta.Tags {
		tags = append(tags, tag.Key)
	}
	sort.Strings(tags)

	table := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor)
	table.AddRow("Name", meta.Name)
	table.AddRow("Type", string(meta.Type))
	table.AddRow("Unit", unit)
	table.AddRow("Operations", strings.Join(meta.Operations, ", "))
	table.AddRow("Tags", strings.Join(tags, ", "))
	table.Render()
}

// askMetricName prompts for a metric name, suggesting derived metrics
func askMetricName(names []string) (string, error) {
	var name string
	prompt := &survey.Input{
		Message: "Metric name:",
		Suggest: func(toComplete string) []string {
			var matches []string
			for _, n := range names {
				if strings.HasPrefix(n, toComplete) {
					matches = append(matches, n)
				}
			}
			return matches
		},
	}
	if err := survey.AskOne(prompt, &name, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}
