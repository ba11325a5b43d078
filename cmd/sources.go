package cmd

import (
	"fmt"

	"github.com/ledgerops/warehouse/handlers"
	"github.com/ledgerops/warehouse/synchronization"
	"github.com/spf13/cobra"
)

var jobType string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List tenant sources with their current statuses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		response := &handlers.SourcesResponse{}
		if err := client.get("/sources", nil, response); err != nil {
			return err
		}

		rows := make([][]string, 0, len(response.Sources))
		for _, source := range response.Sources {
			rows = append(rows, []string{source.ID, source.Name, string(source.Type), source.Engine, colorStatus(string(source.Status)), source.Schedule, formatTime(&source.StatusChangedAt)})
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Type", "Engine", "Status", "Schedule", "Status changed"}, rows)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <source_id>",
	Short: "Start source synchronization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		accepted := &synchronization.TaskAccepted{}
		if err := client.post("/sources/"+args[0]+"/sync", handlers.SyncRequest{JobType: jobType}, accepted); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Synchronization has been accepted. Execution id: %s\n", accepted.ExecutionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&jobType, "job-type", "", "(optional) full_sync (default), incremental_sync or validation")
}
