package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	ansi "github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/roffe/godali"
)

func init() {
	replayCmd.Flags().Duration("pace", 50*time.Millisecond, "delay between frames")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "transmit the frames listed in a capture file",
	Long: `Replays a text capture, one frame per line in the form

	<length> <hexdata> [twice]

Blank lines and lines starting with # are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pace, _ := cmd.Flags().GetDuration("pace")

		frames, err := loadCapture(args[0])
		if err != nil {
			return err
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		bar := progressbar.NewOptions(len(frames),
			progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetDescription("[cyan][1/1][reset] replaying capture"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))

		ctx := cmd.Context()
		for _, frame := range frames {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := c.TransmitBlock(frame); err != nil {
				return fmt.Errorf("replay stopped at %s: %w", frame.String(), err)
			}
			bar.Add(1)
			time.Sleep(pace)
		}
		fmt.Println()
		return nil
	},
}

func loadCapture(filename string) ([]*godali.Frame, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var frames []*godali.Frame
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected <length> <hexdata>", filename, lineNo)
		}
		frame, err := parseFrame(fields[:2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		if len(fields) > 2 && fields[2] == "twice" {
			frame.SendTwice = true
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}
