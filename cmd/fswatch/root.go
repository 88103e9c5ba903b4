// Command fswatch is the client CLI: one subcommand per daemon verb,
// connecting to the unix socket and printing the JSON response. Grounded on
// the teacher's cmd/root.go Execute()+rootCmd.AddCommand(...) pattern and
// its package-level shared-flag var convention (vaultName, debug there ->
// sockname, debug here).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exit codes mirror watchman's own CLI: 0 success, 1 daemon/command error,
// 64 (EX_USAGE) bad arguments.
const exUsage = 64

var (
	sockname string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:     "fswatch",
	Short:   "fswatch - client for the fswatchd filesystem-watching daemon",
	Version: "1.0",
	Long:    "fswatch - client for the fswatchd filesystem-watching daemon",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fswatch: %v\n", err)
		if _, ok := err.(usageError); ok {
			os.Exit(exUsage)
		}
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sockname, "sockname", "", "path to the daemon's unix socket (default: under the user config directory, or $WATCHMAN_SOCK)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "also print the daemon's raw response PDU to stderr")
}

// usageError marks a RunE error as a client-side argument mistake so
// Execute reports EX_USAGE instead of a generic failure.
type usageError struct{ error }

func newUsageError(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}
