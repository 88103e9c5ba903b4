package main

import "github.com/spf13/cobra"

var getPidCmd = &cobra.Command{
	Use:   "get-pid",
	Short: "Print the daemon's process id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.GetPid()
		return printResponse(resp, err)
	},
}

var shutdownServerCmd = &cobra.Command{
	Use:   "shutdown-server",
	Short: "Ask the daemon to exit gracefully",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.ShutdownServer()
		return printResponse(resp, err)
	},
}

func init() {
	rootCmd.AddCommand(getPidCmd, shutdownServerCmd)
}
