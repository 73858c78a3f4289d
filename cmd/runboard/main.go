package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "runboard",
		Short: "Runboard - Live dashboard for backend job runner executions",
		Long: `Runboard is an operator dashboard for a backend job runner.
It fetches execution plans, starts and aborts runs, and follows each
run's event stream live, surviving connection drops with bounded
reconnection.`,
		RunE: runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
