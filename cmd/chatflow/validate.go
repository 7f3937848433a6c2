package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/chatflow/core/flowfile"
	"github.com/leofalp/chatflow/patterns/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow.yaml...]",
	Short: "Check that flow files parse and compile",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			if err := validateFlow(path); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d flows are invalid", failed, len(args))
		}
		return nil
	},
}

func validateFlow(path string) error {
	doc, err := flowfile.Load(path)
	if err != nil {
		return err
	}
	if err := graph.New(graph.NewRegistry(nil)).Load(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
