package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "In-path governance gateway for AI agents",
	Long: `Warden is an AI control plane: an in-path gateway that every model
call must traverse. Each request passes the kill switch, the agent
registry, deterministic policy evaluation, and optional human approval
before the model is invoked, and every decision lands in a hash-chained,
HMAC-signed audit trail.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
