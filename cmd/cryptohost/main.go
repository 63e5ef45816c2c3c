// Command cryptohost runs a WebAssembly module with WASI preview1 and the
// wasi-crypto common host module.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	logLevel string
	logFile  string
	logDev   bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "cryptohost",
		Short: "Run WebAssembly modules against the wasi-crypto host",
		Long: `cryptohost instantiates a core WebAssembly module with WASI preview1 and
the wasi_ephemeral_crypto_common host module, then runs it.

Keys for the in-memory key store can be seeded with --key so guests can
exercise key manager sessions.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&g.logDev, "log-dev", false, "human-readable development logs")

	rootCmd.AddCommand(newRunCommand(&g))
	rootCmd.AddCommand(newExportsCommand())

	return rootCmd.Execute()
}
