package main

import (
	"fmt"
	"sort"

	"github.com/multivec-tiles/server/internal/service"
	"github.com/spf13/cobra"
)

var summary bool

var tilesCmd = &cobra.Command{
	Use:   "tiles <url> <zoom.column>...",
	Short: "Fetch tiles and print them as JSON",
	Long:  "Fetch tiles concurrently. Malformed ids are skipped; failed tiles are printed as {\"error\": ...}.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTiles,
}

func init() {
	tilesCmd.Flags().BoolVar(&summary, "summary", false, "print shape and value range instead of tile data")
}

func runTiles(cmd *cobra.Command, args []string) error {
	fetcher, cleanup, err := openFetcher(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	results := fetcher.FetchTiles(cmd.Context(), args[1:])
	out := make(map[string]interface{}, len(results))
	for id, res := range results {
		if res.Err != nil {
			out[id] = map[string]string{"error": res.Err.Error()}
			continue
		}
		out[id] = service.EncodeTile(res.Tile)
	}

	if !summary {
		return printJSON(cmd.OutOrStdout(), out)
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := cmd.OutOrStdout()
	for _, id := range ids {
		res := results[id]
		if res.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", id, res.Err)
			continue
		}
		t := res.Tile
		fmt.Fprintf(w, "%s\t%dx%d\tmin=%g max=%g\n", id, t.Shape[0], t.Shape[1], t.Extrema.Min, t.Extrema.Max)
	}
	return nil
}
