package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowly/flowly/pkg/validation"
)

func newValidateCmd() *cobra.Command {
	var opts validation.DocumentOptions

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a flow document for consistency",
		Long: `Checks ids, dangling connections, duplicates and self-loops.
--ports also requires connections to name their endpoints' current ports,
--limits checks port capacities and --acyclic rejects cycles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			err = validation.ValidateDocument(doc, opts)
			var errs validation.ValidationErrors
			if errors.As(err, &errs) {
				out := cmd.OutOrStdout()
				for _, e := range errs {
					if e.Value == nil || e.Value == "" {
						fmt.Fprintf(out, "  %s: %s\n", e.Field, e.Message)
						continue
					}
					fmt.Fprintf(out, "  %s: %s (%v)\n", e.Field, e.Message, e.Value)
				}
				return fmt.Errorf("%d validation error(s) in %s", len(errs), args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d nodes, %d connections)\n",
				args[0], len(doc.Nodes), len(doc.Connections))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.CheckCycles, "acyclic", false, "reject documents whose connections form a cycle")
	cmd.Flags().BoolVar(&opts.CheckPorts, "ports", false, "reject connections whose port ids no longer match their endpoints")
	cmd.Flags().BoolVar(&opts.CheckLimits, "limits", false, "reject ports holding more connections than their limit")
	cmd.Flags().IntVar(&opts.MaxErrors, "max-errors", 0, "stop reporting after this many errors (0 reports all)")
	return cmd
}
