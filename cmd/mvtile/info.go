package main

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Print the tileset info of a multivec store",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	fetcher, cleanup, err := openFetcher(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	// Errors are reported in the document, like the HTTP endpoint does.
	return printJSON(cmd.OutOrStdout(), fetcher.TilesetInfoResult(cmd.Context()))
}
