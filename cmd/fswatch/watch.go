package main

import "github.com/spf13/cobra"

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Start watching a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Watch(args[0])
		return printResponse(resp, err)
	},
}

var watchProjectCmd = &cobra.Command{
	Use:   "watch-project <path>",
	Short: "Watch the project root containing path, walking upward for a root marker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.WatchProject(args[0])
		return printResponse(resp, err)
	},
}

var watchDelCmd = &cobra.Command{
	Use:   "watch-del <path>",
	Short: "Stop watching a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.WatchDel(args[0])
		return printResponse(resp, err)
	},
}

var watchDelAllCmd = &cobra.Command{
	Use:   "watch-del-all",
	Short: "Stop watching every root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.WatchDelAll()
		return printResponse(resp, err)
	},
}

var watchListCmd = &cobra.Command{
	Use:   "watch-list",
	Short: "List every currently watched root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.WatchList()
		return printResponse(resp, err)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd, watchProjectCmd, watchDelCmd, watchDelAllCmd, watchListCmd)
}
