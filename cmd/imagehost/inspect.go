package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/imagehost/internal/metadata"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the metadata document stored for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		extractor, err := metadata.New()
		if err != nil {
			return err
		}
		doc, err := extractor.Extract(args[0], data)
		if err != nil {
			return err
		}
		out, err := extractor.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
