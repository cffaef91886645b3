package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models <provider>",
	Short: "List the known models of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caps, err := llmprovider.GetCapabilityRegistry().GetProviderCapabilities(args[0])
		if err != nil {
			return err
		}

		names := make([]string, 0, len(caps.Models))
		for name := range caps.Models {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tCONTEXT\tMAX OUTPUT\tTOOLS\tTHINKING")
		for _, name := range names {
			m := caps.Models[name]
			fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%t\n", name, m.ContextWindow, m.MaxOutputTokens, m.Features.Tools, m.Features.Thinking)
		}
		return w.Flush()
	},
}
