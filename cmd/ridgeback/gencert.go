package main

import (
	"fmt"
	"os"

	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/spf13/cobra"
)

var genCertCmd = &cobra.Command{
	Use:   "gen-cert",
	Short: "Generate a self-signed node identity",
	Long: `Generate a fresh self-signed TLS identity and write it to the given
path as a PEM certificate followed by its EC private key, refusing to
overwrite a file that already exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("out")

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing identity file %q", path)
		}

		identity, err := networking.LoadOrCreateIdentity(path)
		if err != nil {
			return fmt.Errorf("failed to generate identity: %w", err)
		}

		fmt.Printf("wrote identity %s to %s\n", identity.NodeId, path)
		return nil
	},
}

func init() {
	genCertCmd.Flags().String("out", "", "Path to write the generated identity to (required)")
	_ = genCertCmd.MarkFlagRequired("out")
}
