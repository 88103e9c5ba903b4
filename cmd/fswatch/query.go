package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// readQueryArg decodes a query object from the literal JSON string arg, or
// from stdin when arg is "-" (spec §6's "Pretty JSON is accepted when read
// from a TTY stdin": an interactive terminal gets a short prompt on stderr
// before blocking on input; a piped stdin reads silently).
func readQueryArg(arg string) (map[string]interface{}, error) {
	var raw []byte
	if arg == "-" {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "fswatch: reading query JSON from stdin (Ctrl-D to end)...")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("query: reading stdin: %w", err)
		}
		raw = data
	} else {
		raw = []byte(arg)
	}
	var q map[string]interface{}
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, newUsageError("query: malformed query JSON: %v", err)
	}
	return q, nil
}

var clockSyncTimeoutMs int

var clockCmd = &cobra.Command{
	Use:   "clock <path>",
	Short: "Print the root's current clockspec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Clock(args[0], clockSyncTimeoutMs)
		return printResponse(resp, err)
	},
}

var findCmd = &cobra.Command{
	Use:   "find <path> [pattern...]",
	Short: "Legacy glob-pattern search against a watched root",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Find(args[0], args[1:]...)
		return printResponse(resp, err)
	},
}

var sinceCmd = &cobra.Command{
	Use:   "since <path> <clockspec> [pattern...]",
	Short: "Legacy glob-pattern search restricted to changes since a clockspec",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Since(args[0], args[1], args[2:]...)
		return printResponse(resp, err)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <path> <query-json>",
	Short: "Run a query expression (JSON object) against a watched root",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := readQueryArg(args[1])
		if err != nil {
			return err
		}
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Query(args[0], q)
		return printResponse(resp, err)
	},
}

func init() {
	clockCmd.Flags().IntVar(&clockSyncTimeoutMs, "sync-timeout", 0, "milliseconds to wait for a sync-to-now cookie round trip before returning the clock")
	rootCmd.AddCommand(clockCmd, findCmd, sinceCmd, queryCmd)
}
