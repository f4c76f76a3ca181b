package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cranker",
	Short: "Permissionless executor for the rental escrow task queue",
	Long:  "Executes due end-of-rental tasks, sweeps expired rentals and prunes stale tasks, earning the queue's crank reward.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
