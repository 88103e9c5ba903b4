package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
)

var debugStatusCmd = &cobra.Command{
	Use:   "debug-status",
	Short: "Print a human-readable summary of every watched root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer c.Close()

		listResp, err := c.WatchList()
		if err != nil {
			return err
		}
		roots, _ := listResp["roots"].([]interface{})
		if len(roots) == 0 {
			fmt.Println("no roots watched")
			return nil
		}
		for _, r := range roots {
			path, ok := r.(string)
			if !ok {
				continue
			}
			clockResp, err := c.Clock(path, 0)
			if err != nil {
				fmt.Printf("%s: error: %v\n", path, err)
				continue
			}
			triggerResp, err := c.TriggerList(path)
			triggerCount := 0
			if err == nil {
				if names, ok := triggerResp["triggers"].([]interface{}); ok {
					triggerCount = len(names)
				}
			}
			age := "unknown age"
			if clock, ok := clockResp["clock"].(string); ok {
				if spec, err := clockspec.Parse(clock); err == nil && spec.Ticked {
					age = humanize.Time(time.Unix(spec.StartTime, 0))
				}
			}
			fmt.Printf("%s  clock=%v  daemon started %s  %s\n",
				path, clockResp["clock"], age, humanize.Comma(int64(triggerCount))+" trigger(s)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugStatusCmd)
}
