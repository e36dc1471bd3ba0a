package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/roffe/godali/transport"
)

func init() {
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(transportsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		for _, port := range ports {
			fmt.Printf("port: %s\n", port.Name)
			if port.IsUSB {
				fmt.Printf("   USB ID      %s:%s\n", port.VID, port.PID)
				fmt.Printf("   USB serial  %s\n", port.SerialNumber)
			}
		}
		return nil
	},
}

var transportsCmd = &cobra.Command{
	Use:   "transports",
	Short: "list available transports",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, info := range transport.List() {
			fmt.Println(info.String())
		}
	},
}
