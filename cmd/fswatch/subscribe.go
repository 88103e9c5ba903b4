package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <path> <name> [query-json]",
	Short: "Register a subscription and stream matching changes until interrupted",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := map[string]interface{}{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &q); err != nil {
				return newUsageError("subscribe: malformed query JSON: %v", err)
			}
		}
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Subscribe(args[0], args[1], q)
		if err != nil {
			return printResponse(resp, err)
		}
		if err := printResponse(resp, nil); err != nil {
			return err
		}

		for {
			push, err := c.ReadPush()
			if err != nil {
				return fmt.Errorf("subscribe: connection closed: %w", err)
			}
			b, err := json.MarshalIndent(push, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		}
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <path> <name>",
	Short: "Cancel a subscription",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Unsubscribe(args[0], args[1])
		return printResponse(resp, err)
	},
}

func init() {
	rootCmd.AddCommand(subscribeCmd, unsubscribeCmd)
}
