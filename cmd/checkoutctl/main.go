package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operator tooling for the checkout API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(priceCmd())
	root.AddCommand(signCmd())
	root.AddCommand(checksumCmd())
	root.AddCommand(verifyWebhookCmd())
	root.AddCommand(referenceCmd())
	root.AddCommand(reconcileCmd())
	return root
}
