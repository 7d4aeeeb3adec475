// Package cmd wires the harvester's command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "euctr-harvester",
	Short: "Harvest clinical-trial records from the EU Clinical Trials Register",
	Long: `euctr-harvester crawls the EU Clinical Trials Register for a date
window, extracts protocol documents, and produces a JSON snapshot plus three
CSV tables (trial cards, protocols, results) per harvested day.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
}
