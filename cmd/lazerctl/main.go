// Package main is the operator CLI: it generates signer keys, builds and
// submits consumer transactions, and inspects envelopes and records.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lazerctl",
		Short: "Operate price feed consumer instances",
		Long: `lazerctl generates trusted signer keys, builds create and update
transactions for a consumer instance and submits them to the daemon through
its Redis stream or MQTT topic. It can also decode signed envelopes and read
the record a consumer instance keeps.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newKeygenCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newDecodeCmd(),
		newStateCmd(),
	)
	return root
}
