package cmd

import (
	"fmt"
	"io"
	"time"

	au "github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
)

func renderTable(out io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.AppendBulk(rows)
	table.Render()
}

//colorStatus paints terminal statuses: green for success, red for failures
func colorStatus(status string) string {
	switch status {
	case "completed", "connected", "idle":
		return au.Green(status).String()
	case "failed", "error":
		return au.Red(status).String()
	case "running", "syncing", "pending":
		return au.Yellow(status).String()
	default:
		return status
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
