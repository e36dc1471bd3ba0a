package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roffe/godali"
)

func init() {
	queryCmd.Flags().Uint8P("priority", "P", uint8(godali.DefaultPriority), "bus priority 0-5")
	queryCmd.Flags().Duration("window", godali.DefaultReplyWindow, "reply window")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <length> <hexdata>",
	Short: "transmit a frame and wait for the backward frame answering it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		request, err := parseFrame(args)
		if err != nil {
			return err
		}
		request.Priority, _ = cmd.Flags().GetUint8("priority")
		window, _ := cmd.Flags().GetDuration("window")

		c, err := newClient(cmd, godali.WithReplyWindow(window))
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		reply, err := c.QueryReply(request)
		if err != nil {
			return err
		}
		fmt.Println(reply.ColorString())
		fmt.Println("took", time.Since(start).String())
		return nil
	},
}
