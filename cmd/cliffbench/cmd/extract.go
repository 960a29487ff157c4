package cmd

import (
	"github.com/mattn/go-zglob"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/common/config"
	"github.com/G-Research/cliffbench/internal/histogram"
)

const extractKey = "extract"

// Summarise histogram interval logs written by explore.
func extractCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract PATTERN...",
		Short: "Summarise histogram logs as tab separated values.",
		Long: `Summarise histogram logs as tab separated values.

Every pattern may be a file or a glob, including ** for any number of directories. The operations of every file are
merged by name, and an "all" operation merges every operation. By default one row is printed per operation, metric
and quantile over the whole run; with --timeline one row is printed per operation, metric and window instead.

Logs do not record operation names, so they are taken from --ops, or from the extract section of the config file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := histogram.DefaultOperationNames()
			if v.IsSet(extractKey) {
				if err := v.UnmarshalKey(extractKey, &names, config.CustomHooks...); err != nil {
					return err
				}
			}
			ops, err := cmd.Flags().GetStringSlice("ops")
			if err != nil {
				return err
			}
			if len(ops) > 0 {
				names.Default = ops
			}
			timeline, err := cmd.Flags().GetBool("timeline")
			if err != nil {
				return err
			}

			ctx := benchctx.Background()
			report, err := histogram.ExtractFiles(ctx, expandPatterns(args), names)
			if err != nil {
				return err
			}
			if timeline {
				return histogram.WriteTimeline(cmd.OutOrStdout(), report, ctx.Log)
			}
			return histogram.WriteCollapsed(cmd.OutOrStdout(), report, ctx.Log)
		},
	}

	cmd.Flags().Bool("timeline", false, "Print one row per time window instead of one per quantile.")
	cmd.Flags().StringSlice("ops", nil, "Names of the operations in each file, in the order they were written, e.g. writes,reads.")
	return cmd
}

// expandPatterns expands each glob. A pattern that matches nothing is kept as is, so that a missing file is reported
// by name.
func expandPatterns(patterns []string) []string {
	var paths []string
	for _, pattern := range patterns {
		matches, err := zglob.Glob(pattern)
		if err != nil || len(matches) == 0 {
			log.Debugf("%s matched no files", pattern)
			paths = append(paths, pattern)
			continue
		}
		paths = append(paths, matches...)
	}
	return paths
}
