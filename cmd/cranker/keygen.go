package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nft-rental-escrow/internal/security"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a cranker identity key",
	Long:  "Writes a new ed25519 seed to the output file and prints the identity address.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		signer, err := security.GenerateSigner()
		cobra.CheckErr(err)
		cobra.CheckErr(signer.Save(keygenOut))
		fmt.Fprintln(cmd.OutOrStdout(), signer.Address().String())
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "config/cranker.key", "Where to write the key")
	rootCmd.AddCommand(keygenCmd)
}
