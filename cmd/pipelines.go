package cmd

import (
	"fmt"
	"strconv"

	"github.com/ledgerops/warehouse/handlers"
	"github.com/ledgerops/warehouse/synchronization"
	"github.com/spf13/cobra"
)

var pipelinesSourceID string

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List tenant pipelines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		response := &handlers.PipelinesResponse{}
		if err := client.get("/pipelines", map[string]string{"source_id": pipelinesSourceID}, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Pipelines))
		for _, pipeline := range response.Pipelines {
			rows = append(rows, []string{pipeline.ID, pipeline.Name, pipeline.SourceID, string(pipeline.Mode), strconv.Itoa(len(pipeline.Steps)),
				strconv.FormatBool(pipeline.Enabled), colorStatus(string(pipeline.Status)), formatTime(pipeline.LastRunAt)})
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Source", "Mode", "Steps", "Enabled", "Status", "Last run"}, rows)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <pipeline_id>",
	Short: "Start pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		accepted := &synchronization.TaskAccepted{}
		if err := client.post("/pipelines/"+args[0]+"/run", nil, accepted); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline run has been accepted. Execution id: %s\n", accepted.ExecutionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelinesCmd)
	rootCmd.AddCommand(runCmd)

	pipelinesCmd.Flags().StringVar(&pipelinesSourceID, "source", "", "(optional) show only pipelines of the source")
}
