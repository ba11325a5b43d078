package cmd

import (
	"strconv"
	"strings"

	"github.com/ledgerops/warehouse/handlers"
	"github.com/spf13/cobra"
)

var (
	historySourceID, historyPipelineID, historyKind, historyStatus string
	historyLimit, trendDays                                        int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show newest first executions of sources syncs and pipelines runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := map[string]string{
			"source_id":   historySourceID,
			"pipeline_id": historyPipelineID,
			"kind":        historyKind,
			"status":      historyStatus,
		}
		if historyLimit > 0 {
			params["limit"] = strconv.Itoa(historyLimit)
		}

		response := &handlers.HistoryResponse{}
		if err := client.get("/history", params, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Executions))
		for _, execution := range response.Executions {
			entityID := execution.SourceID
			if execution.PipelineID != "" {
				entityID = execution.PipelineID
			}
			rows = append(rows, []string{execution.ID, string(execution.Kind), entityID, colorStatus(string(execution.Status)),
				strconv.FormatInt(execution.RecordsProcessed, 10), strconv.FormatInt(execution.RecordsFailed, 10),
				formatTime(&execution.StartedAt), strings.Join(execution.Errors, "; ")})
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Kind", "Entity", "Status", "Processed", "Failed", "Started", "Error"}, rows)
		return nil
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show daily executions and quality trends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		response := &handlers.TrendsResponse{}
		if err := client.get("/trends", map[string]string{"days": strconv.Itoa(trendDays)}, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Buckets))
		for _, bucket := range response.Buckets {
			rows = append(rows, []string{bucket.Day, strconv.Itoa(bucket.Executions), strconv.Itoa(bucket.Completed), strconv.Itoa(bucket.Failed),
				strconv.FormatInt(bucket.RecordsProcessed, 10), strconv.Itoa(bucket.QualityChecks), formatFloat(bucket.AvgQualityScore)})
		}
		renderTable(cmd.OutOrStdout(), []string{"Day", "Executions", "Completed", "Failed", "Records", "Quality checks", "Avg quality"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trendsCmd)

	historyCmd.Flags().StringVar(&historySourceID, "source", "", "(optional) filter by source id")
	historyCmd.Flags().StringVar(&historyPipelineID, "pipeline", "", "(optional) filter by pipeline id")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "(optional) source_sync or pipeline_run")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "(optional) pending, running, completed or failed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "(optional) max number of executions (server default is 100)")

	trendsCmd.Flags().IntVar(&trendDays, "days", 7, "(optional) number of days [1, 366]")
}
