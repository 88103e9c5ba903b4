package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	stateMetadataJSON  string
	stateSyncTimeoutMs int
)

var stateEnterCmd = &cobra.Command{
	Use:   "state-enter <path> <name>",
	Short: "Mark the start of a named application-defined state change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := parseMetadata(stateMetadataJSON)
		if err != nil {
			return err
		}
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.StateEnter(args[0], args[1], md, stateSyncTimeoutMs)
		return printResponse(resp, err)
	},
}

var stateLeaveCmd = &cobra.Command{
	Use:   "state-leave <path> <name>",
	Short: "Mark the end of a named application-defined state change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := parseMetadata(stateMetadataJSON)
		if err != nil {
			return err
		}
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.StateLeave(args[0], args[1], md, stateSyncTimeoutMs)
		return printResponse(resp, err)
	},
}

func parseMetadata(raw string) (interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, newUsageError("malformed --metadata JSON: %v", err)
	}
	return v, nil
}

func init() {
	stateEnterCmd.Flags().StringVar(&stateMetadataJSON, "metadata", "", "optional JSON metadata attached to the state change")
	stateEnterCmd.Flags().IntVar(&stateSyncTimeoutMs, "sync-timeout", 0, "milliseconds to wait for a sync-to-now cookie round trip before bracketing the state change")
	stateLeaveCmd.Flags().StringVar(&stateMetadataJSON, "metadata", "", "optional JSON metadata attached to the state change")
	stateLeaveCmd.Flags().IntVar(&stateSyncTimeoutMs, "sync-timeout", 0, "milliseconds to wait for a sync-to-now cookie round trip before bracketing the state change")
	rootCmd.AddCommand(stateEnterCmd, stateLeaveCmd)
}
