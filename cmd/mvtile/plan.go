package main

import (
	"fmt"

	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <url> <zoom.column>",
	Short: "Show the genomic range and chunk reads of one tile",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	zoom, column, ok := multivec.ParseTileID(args[1])
	if !ok {
		return fmt.Errorf("invalid tile id %q", args[1])
	}

	fetcher, cleanup, err := openFetcher(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := fetcher.Plan(cmd.Context(), zoom, column)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), plan)
}
