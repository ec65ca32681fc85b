package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opd-ai/noisemobile/replay"
	"github.com/spf13/cobra"
)

func windowCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "window [hex]",
		Short: "Decode a serialized replay window",
		Long:  "Decode replay window state given as hex on the command line or read raw from --file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("pass either a hex argument or --file, not both")
			case file != "":
				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				data = raw
			case len(args) == 1:
				raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("invalid hex: %w", err)
				}
				data = raw
			default:
				return fmt.Errorf("no window state given")
			}
			return describeWindow(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read raw window state from a file")
	return cmd
}

// windowHeaderLen is the version byte plus both counters.
const windowHeaderLen = 1 + 8 + 8

func describeWindow(w io.Writer, data []byte) error {
	if len(data) <= windowHeaderLen {
		return fmt.Errorf("window state too short: %d bytes", len(data))
	}
	window, err := replay.NewWindow((len(data) - windowHeaderLen) * 8)
	if err != nil {
		return err
	}
	if err := window.Deserialize(data); err != nil {
		return err
	}

	fmt.Fprintf(w, "Window size:   %d\n", window.Size())
	fmt.Fprintf(w, "Last sent:     %d\n", window.LastSent())
	fmt.Fprintf(w, "Last received: %d\n", window.LastReceived())

	hi := window.LastReceived()
	var seen []string
	for d := uint64(0); d < uint64(window.Size()) && d < hi; d++ {
		c := hi - d
		if errors.Is(window.Check(c), replay.ErrReplay) {
			seen = append(seen, fmt.Sprint(c))
		}
	}
	if len(seen) == 0 {
		fmt.Fprintln(w, "Seen counters: none")
		return nil
	}
	fmt.Fprintf(w, "Seen counters: %s\n", strings.Join(seen, " "))
	return nil
}
