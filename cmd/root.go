package cmd

import (
	"fmt"
	"os"

	au "github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	//global flags
	host, adminToken, tenantID string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "warehousectl",
	Short:         "Warehouse CLI tool for managing sources, pipelines and quality checks",
	Long:          `Warehouse CLI tool for managing sources, pipelines and quality checks. It calls Warehouse HTTP API`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, au.Index(1, fmt.Sprintf("Error: %v", err)).String())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", envOrDefault("WAREHOUSE_HOST", "http://localhost:8001"), "(optional) Warehouse host")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", os.Getenv("WAREHOUSE_ADMIN_TOKEN"), "(required) Warehouse server.admin_token. WAREHOUSE_ADMIN_TOKEN env variable is used by default")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", os.Getenv("WAREHOUSE_TENANT"), "(required) business id. WAREHOUSE_TENANT env variable is used by default")
}

func envOrDefault(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}
