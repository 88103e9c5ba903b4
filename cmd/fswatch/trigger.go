package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <path> <definition-json>",
	Short: "Register (or replace) a trigger on a watched root",
	Long: `Register a trigger, a named query expression that spawns a command
whenever matching files change. definition-json has the shape:

  {"name": "rebuild", "command": ["make"], "expression": ["suffix", "go"], "stdin": false}`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var def map[string]interface{}
		if err := json.Unmarshal([]byte(args[1]), &def); err != nil {
			return newUsageError("trigger: malformed definition JSON: %v", err)
		}
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Trigger(args[0], def)
		return printResponse(resp, err)
	},
}

var triggerDelCmd = &cobra.Command{
	Use:   "trigger-del <path> <name>",
	Short: "Remove a trigger by name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.TriggerDel(args[0], args[1])
		return printResponse(resp, err)
	},
}

var triggerListCmd = &cobra.Command{
	Use:   "trigger-list <path>",
	Short: "List every trigger registered on a root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.TriggerList(args[0])
		return printResponse(resp, err)
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd, triggerDelCmd, triggerListCmd)
}
