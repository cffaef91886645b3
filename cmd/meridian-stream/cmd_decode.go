package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-stream-go/chat"
)

var decodeSnapshots bool

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeSnapshots, "snapshots", false, "print every snapshot as a JSON line")
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Assemble a data stream into an assistant message",
	Long: "Reads a data stream (one <code>:<json> frame per line) from a file or stdin\n" +
		"and prints the assembled assistant message as JSON.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open stream: %w", err)
			}
			defer f.Close()
			in = f
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		var opts chat.ProcessOptions
		var writeErr error
		if decodeSnapshots {
			opts.OnUpdate = func(snap chat.Snapshot) {
				if writeErr == nil {
					writeErr = out.Encode(snap)
				}
			}
		}

		info, err := chat.ProcessResponse(cmd.Context(), in, opts)
		if err != nil {
			return fmt.Errorf("decode stream: %w", err)
		}
		if writeErr != nil {
			return fmt.Errorf("write snapshot: %w", writeErr)
		}

		out.SetIndent("", "  ")
		return out.Encode(info)
	},
}
