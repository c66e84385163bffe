package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/multivec-tiles/server/internal/config"
	"github.com/multivec-tiles/server/internal/data/zarr"
	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/multivec-tiles/server/internal/store"
	"github.com/spf13/cobra"
)

var (
	binCapacity int
	tileTimeout time.Duration
	metadataKey string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:          "mvtile",
	Short:        "Multivec tile inspector",
	Long:         "Read tileset metadata, tile plans and tiles from a multivec Zarr store (local path, file://, s3://, gs:// or http(s)://).",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&binCapacity, "bin-capacity", multivec.DefaultBinCapacity, "maximum bins read per tile")
	rootCmd.PersistentFlags().DurationVar(&tileTimeout, "timeout", multivec.DefaultTileTimeout, "per-tile timeout")
	rootCmd.PersistentFlags().StringVar(&metadataKey, "metadata-key", multivec.DefaultMetadataKey, "key of the metadata document")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(tilesCmd)
}

func newLogger() *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return config.LoggingConfig{Level: level, Format: "text"}.NewLogger(os.Stderr)
}

// openFetcher opens the store at url and returns a fetcher plus its cleanup.
func openFetcher(ctx context.Context, url string) (*multivec.Fetcher, func(), error) {
	st, err := store.Open(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	reader, err := zarr.NewReader(st)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to create reader: %w", err)
	}

	fetcher := multivec.NewFetcher(reader, multivec.Options{
		MetadataKey: metadataKey,
		BinCapacity: binCapacity,
		TileTimeout: tileTimeout,
		Logger:      newLogger(),
	})
	cleanup := func() {
		reader.Close()
		_ = st.Close()
	}
	return fetcher, cleanup, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
