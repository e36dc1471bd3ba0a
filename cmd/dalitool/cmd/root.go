package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/roffe/godali"
	"github.com/roffe/godali/transport"
)

var rootCmd = &cobra.Command{
	Use:          "dalitool",
	Short:        "DALI bus swiss army tool",
	Long:         `Send, query and monitor raw DALI frames over a serial dongle or network gateway`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	rootCmd.ExecuteContext(ctx)
}

const (
	flagTransport = "transport"
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagDebug     = "debug"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.StringP(flagTransport, "t", "serial", "transport to use: "+strings.Join(transport.ListNames(), ", "))
	pf.StringP(flagPort, "p", "*", "com-port or gateway host:port, * = pick interactively")
	pf.IntP(flagBaudrate, "b", 0, "baudrate, 0 = transport default")
	pf.BoolP(flagDebug, "d", false, "debug mode")
}

func newClient(cmd *cobra.Command, opts ...godali.Opts) (*godali.Client, error) {
	name, _ := cmd.Flags().GetString(flagTransport)
	port, _ := cmd.Flags().GetString(flagPort)
	baudrate, _ := cmd.Flags().GetInt(flagBaudrate)
	debug, _ := cmd.Flags().GetBool(flagDebug)

	if port == "*" && name == transport.SerialName {
		selected, err := selectPort()
		if err != nil {
			return nil, err
		}
		port = selected
	}

	dev, err := transport.New(name, &godali.TransportConfig{
		Port:         port,
		PortBaudrate: baudrate,
		Debug:        debug,
	})
	if err != nil {
		return nil, err
	}
	return godali.New(cmd.Context(), dev, opts...)
}

func selectPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}
	items := make([]string, 0, len(ports))
	for _, p := range ports {
		desc := p.Name
		if p.IsUSB {
			desc = fmt.Sprintf("%s (USB %s:%s %s)", p.Name, p.VID, p.PID, p.SerialNumber)
		}
		items = append(items, desc)
	}
	prompt := promptui.Select{
		Label:    "Select port",
		HideHelp: true,
		Items:    items,
	}
	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return ports[i].Name, nil
}

// parseFrame turns "<length> <hexdata>" command arguments into a frame
func parseFrame(args []string) (*godali.Frame, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected <length> <hexdata>")
	}
	length, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid length %q: %w", args[0], err)
	}
	data, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid data %q: %w", args[1], err)
	}
	return godali.NewFrame(uint8(length), uint32(data))
}
