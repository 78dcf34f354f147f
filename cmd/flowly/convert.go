package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowly/flowly/pkg/validation"
)

func newConvertCmd() *cobra.Command {
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Re-encode a flow document",
		Long: `Formats follow the file extensions: .json, .yaml/.yml or .msgpack/.mp,
optionally followed by .gz or .zst.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if !skipValidation {
				if err := validation.ValidateDocument(doc); err != nil {
					return fmt.Errorf("refusing to convert invalid document: %w", err)
				}
			}
			if err := writeDocument(args[1], doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d nodes, %d connections)\n",
				args[1], len(doc.Nodes), len(doc.Connections))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValidation, "no-validate", false, "convert without validating first")
	return cmd
}
