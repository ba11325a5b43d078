package cmd

import (
	"fmt"
	"strconv"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/handlers"
	"github.com/spf13/cobra"
)

var (
	qualitySourceID string
	metricsLimit    int
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Manage data quality checks",
}

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List quality checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		response := &handlers.ChecksResponse{}
		if err := client.get("/quality/checks", map[string]string{"source_id": qualitySourceID}, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Checks))
		for _, check := range response.Checks {
			rows = append(rows, []string{check.ID, check.Name, check.SourceID, string(check.Type), strconv.Itoa(len(check.Rules)), strconv.FormatBool(check.Enabled), check.Schedule})
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Source", "Type", "Rules", "Enabled", "Schedule"}, rows)
		return nil
	},
}

var checkRunCmd = &cobra.Command{
	Use:   "run <check_id>",
	Short: "Run quality check and print the score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		metric := &entities.QualityMetric{}
		if err := client.post("/quality/checks/"+args[0]+"/run", nil, metric); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Quality check [%s] (%s) score: %s\n", metric.CheckID, metric.MetricType, formatFloat(metric.Score))
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show newest first quality metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := map[string]string{"source_id": qualitySourceID}
		if metricsLimit > 0 {
			params["limit"] = strconv.Itoa(metricsLimit)
		}

		response := &handlers.MetricsResponse{}
		if err := client.get("/quality/metrics", params, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Metrics))
		for _, metric := range response.Metrics {
			rows = append(rows, []string{metric.ID, metric.CheckID, metric.SourceID, string(metric.MetricType), formatFloat(metric.Score), formatTime(&metric.CreatedAt)})
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Check", "Source", "Type", "Score", "Created"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(qualityCmd)
	qualityCmd.AddCommand(checksCmd, checkRunCmd, metricsCmd)

	qualityCmd.PersistentFlags().StringVar(&qualitySourceID, "source", "", "(optional) filter by source id")
	metricsCmd.Flags().IntVar(&metricsLimit, "limit", 0, "(optional) max number of metrics (server default is 100)")
}
