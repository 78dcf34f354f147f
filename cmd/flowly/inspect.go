package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowly/flowly/internal/core/graph"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Load a flow document and print its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			store := graph.NewStore()
			if err := store.LoadDocument(doc); err != nil {
				return fmt.Errorf("failed to load %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d nodes, %d connections\n\n", store.NodeCount(), store.ConnectionCount())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tIN\tOUT\tLIMITS\tFLAGS")
			for _, n := range store.Nodes() {
				flags := ""
				if n.ReadOnly {
					flags = "read-only"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					n.ID, n.Name(), len(n.Incoming), len(n.Outgoing), limits(&n.Node), flags)
			}
			return tw.Flush()
		},
	}
}

func limits(n *graph.Node) string {
	return fmt.Sprintf("%s/%s", portLimit(n.Input), portLimit(n.Output))
}

func portLimit(p *graph.Port) string {
	switch {
	case p == nil:
		return "-"
	case p.Limit.IsUnbounded():
		return "∞"
	default:
		return fmt.Sprint(int(p.Limit))
	}
}
