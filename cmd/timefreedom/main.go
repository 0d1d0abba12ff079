package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "timefreedom",
	Short: "Time Freedom report service",
	Long: `timefreedom turns a funnel lead into a personalized delegation report.
A generated report is audited against the business rules, repaired when it
falls short, and delivered to the CRM, the lead's inbox and the report bucket
in the background.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the base config file")
	rootCmd.AddCommand(serveCmd(), generateCmd(), roiCmd(), runsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
