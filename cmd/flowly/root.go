package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/pkg/serialization"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowly",
		Short:         "flowly manages node-and-connection flow graphs",
		Long:          `flowly validates, inspects and converts flow documents, and serves a flow over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newVersionCmd(),
		newValidateCmd(),
		newInspectCmd(),
		newConvertCmd(),
		newServeCmd(),
	)
	return root
}

// readDocument decodes path with the codec its extension names.
func readDocument(path string) (*graph.Document, error) {
	ser, err := serialization.ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc graph.Document
	if err := ser.Deserialize(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &doc, nil
}

func writeDocument(path string, doc *graph.Document) error {
	ser, err := serialization.ForPath(path)
	if err != nil {
		return err
	}
	data, err := ser.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
