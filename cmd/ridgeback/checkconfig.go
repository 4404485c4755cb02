package main

import (
	"fmt"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a configuration file without starting the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		fmt.Printf("config OK: network=%q bind=%q known_addresses=%d rpc=%q data_dir=%q\n",
			cfg.NetworkName, cfg.BindAddress, len(cfg.KnownAddresses), cfg.RPCBindAddress, cfg.DataDir)
		return nil
	},
}

func init() {
	checkConfigCmd.Flags().String("config", "", "Path to the YAML configuration file (required)")
	_ = checkConfigCmd.MarkFlagRequired("config")
}
