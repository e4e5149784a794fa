package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/voiceterm/remote"
)

// KeygenCmd creates the keygen command.
func KeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a Curve25519 keypair for encrypted links",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := remote.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}
			fmt.Printf("public:  %s\n", hex.EncodeToString(keys.Public[:]))
			fmt.Printf("private: %s\n", hex.EncodeToString(keys.Private[:]))
			return nil
		},
	}
}
