package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rmsim",
	Short: "Rate-monotonic kernel on a simulated Cortex-M core",
	Long: `rmsim boots the rate-monotonic kernel on a host-simulated ARMv7-M core and
streams every release, dispatch, preemption and completion it makes.`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML board configuration (defaults when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(layoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
