package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evan-brass/hyperspace/internal/identity"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh P-256 keypair and print its PeerId",
		Long: "Generates a keypair and prints the resulting PeerId to stdout. " +
			"The private key itself is discarded — this node never persists a " +
			"keypair across runs, so keygen is only useful for previewing what " +
			"a PeerId looks like.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Generate()
			if err != nil {
				return fmt.Errorf("generating identity: %w", err)
			}
			fmt.Println(id.PeerId().String())
			return nil
		},
	}
}
