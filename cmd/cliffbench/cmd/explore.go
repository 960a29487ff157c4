package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/cliffbench/internal/campaign"
	"github.com/G-Research/cliffbench/internal/campaign/configuration"
	"github.com/G-Research/cliffbench/internal/common/app"
	"github.com/G-Research/cliffbench/internal/common/logging"
	"github.com/G-Research/cliffbench/internal/common/serve"
)

const metricsPortKey = "metricsPort"

// Run a campaign and print the boundary found for each group.
func exploreCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Find the load at which each group of a campaign stops coping.",
		Long: `Find the load at which each group of a campaign stops coping.

Each group is searched independently, at most three at a time, and then re-measured at the boundaries its siblings
reached. Histograms of every probe, a summary.yaml and a SQLite results database are written to the campaign's
output directory. Interrupting the command finishes the probes in flight and records what was found so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("campaign")
			if err != nil {
				return err
			}
			cfg, err := configuration.Load(path)
			if err != nil {
				return err
			}

			if port := uint16(v.GetUint(metricsPortKey)); port > 0 {
				if err := logging.AddPrometheusHook(log.StandardLogger()); err != nil {
					return err
				}
				_, shutdown, err := serve.ServeMetrics(port)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			ctx := app.CreateContextWithShutdown(log.NewEntry(log.StandardLogger()))
			summary, err := campaign.Run(ctx, cfg)
			if summary != nil {
				if summary.Cancelled {
					log.Warn("campaign was cancelled; results are partial")
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), summary.Table())
			}
			return err
		},
	}

	cmd.Flags().String("campaign", "", "Path to the campaign file.")
	_ = cmd.MarkFlagRequired("campaign")
	cmd.Flags().Uint16("metrics-port", 0, "Serve Prometheus metrics on this port while the campaign runs. 0 disables.")
	mustBind(v, metricsPortKey, cmd.Flags().Lookup("metrics-port"))
	return cmd
}
