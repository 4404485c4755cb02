package main

import (
	"fmt"
	"os"

	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ridgeback",
	Short: "Ridgeback - a weighted round-robin validator reactor node",
	Long: `Ridgeback runs a validator node through its three-stage lifecycle:
initializer, joiner, and validator, each driven by the same weighted
round-robin event scheduler.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ridgeback version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(validatorCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(genCertCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	rlog.Init(rlog.Config{
		Level:      rlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
