package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/roffe/godali"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "print every frame seen on the bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		ctx := cmd.Context()
		for {
			select {
			case <-ctx.Done():
				st := c.Stats()
				log.Println(st.String())
				return nil
			default:
			}
			frame := c.Get(time.Second)
			if !c.Connected() {
				st := c.Stats()
				log.Println(st.String())
				return nil
			}
			if frame.Status == godali.Timeout && frame.Length == 0 {
				// quiet bus, keep waiting
				continue
			}
			fmt.Println(frame.ColorString())
		}
	},
}
