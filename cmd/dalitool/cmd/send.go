package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roffe/godali"
)

func init() {
	sendCmd.Flags().Uint8P("priority", "P", uint8(godali.DefaultPriority), "bus priority 0-5")
	sendCmd.Flags().Bool("twice", false, "send the frame twice (configuration commands)")
	sendCmd.Flags().Bool("block", false, "wait for the transmission to complete")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <length> <hexdata>",
	Short: "transmit one frame",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseFrame(args)
		if err != nil {
			return err
		}
		frame.Priority, _ = cmd.Flags().GetUint8("priority")
		frame.SendTwice, _ = cmd.Flags().GetBool("twice")
		block, _ := cmd.Flags().GetBool("block")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if block {
			err = c.TransmitBlock(frame)
		} else {
			err = c.Transmit(frame)
		}
		if err != nil {
			return err
		}
		fmt.Println(frame.ColorString())
		return nil
	},
}
