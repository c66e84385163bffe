// Package multivec serves fixed-size tiles of a multi-sample genomic signal
// stored as per-chromosome, per-resolution arrays.
//
// A tile (zoom, column) covers a range of the linear genome coordinate system
// defined by the tileset's chromosome sizes. Because storage is partitioned by
// chromosome, the range is split into one chunk per chromosome it touches,
// the chunks are read concurrently and stitched back into one dense
// samples × bins buffer.
package multivec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTileTimeout bounds one tile pipeline inside a batch.
const DefaultTileTimeout = 30 * time.Second

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	MetadataKey string
	BinCapacity int
	TileTimeout time.Duration
	Logger      *slog.Logger
}

// Fetcher resolves tileset metadata and builds tiles for one multivec group.
type Fetcher struct {
	store       ChunkStore
	resolver    *MetadataResolver
	binCapacity int
	tileTimeout time.Duration
	logger      *slog.Logger
	trackUID    string
}

// NewFetcher creates a fetcher reading from store.
func NewFetcher(store ChunkStore, opts Options) *Fetcher {
	if opts.BinCapacity <= 0 {
		opts.BinCapacity = DefaultBinCapacity
	}
	if opts.TileTimeout <= 0 {
		opts.TileTimeout = DefaultTileTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trackUID := uuid.NewString()
	logger = logger.With("track", trackUID)

	return &Fetcher{
		store:       store,
		resolver:    NewMetadataResolver(store, opts.MetadataKey, logger),
		binCapacity: opts.BinCapacity,
		tileTimeout: opts.TileTimeout,
		logger:      logger,
		trackUID:    trackUID,
	}
}

// TrackUID identifies this fetcher instance in logs.
func (f *Fetcher) TrackUID() string { return f.trackUID }

// TilesetInfo returns the memoized tileset metadata.
func (f *Fetcher) TilesetInfo(ctx context.Context) (*TilesetInfo, error) {
	return f.resolver.Resolve(ctx)
}

// Reset invalidates the memoized metadata.
func (f *Fetcher) Reset() { f.resolver.Reset() }

// TilesetInfoResult carries either the metadata or an error message. It is
// always deliverable to callers; errors travel in the Error field.
type TilesetInfoResult struct {
	Info  *TilesetInfo
	Error string
}

// MarshalJSON encodes the info itself, or {"error": "..."}.
func (r TilesetInfoResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" || r.Info == nil {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	return json.Marshal(r.Info)
}

// TilesetInfoResult resolves the metadata and reports failures in-band.
func (f *Fetcher) TilesetInfoResult(ctx context.Context) TilesetInfoResult {
	info, err := f.TilesetInfo(ctx)
	if err != nil {
		f.logger.Warn("tileset info unavailable", "err", err)
		return TilesetInfoResult{Error: fmt.Sprintf("Error parsing zarr multivec: %v", err)}
	}
	return TilesetInfoResult{Info: info}
}

// TilePlan is the resolved geometry of one tile.
type TilePlan struct {
	Zoom        int               `json:"zoom"`
	Column      int               `json:"column"`
	Start       int               `json:"start"`
	End         int               `json:"end"`
	BinSize     int               `json:"bin_size"`
	From        GenomicPosition   `json:"from"`
	To          GenomicPosition   `json:"to"`
	Descriptors []ChunkDescriptor `json:"descriptors"`
}

// Plan computes the genomic range and chunk descriptors of tile (zoom, column).
func (f *Fetcher) Plan(ctx context.Context, zoom, column int) (*TilePlan, error) {
	info, err := f.TilesetInfo(ctx)
	if err != nil {
		return nil, err
	}
	return planTile(info, zoom, column, f.binCapacity)
}

func planTile(info *TilesetInfo, zoom, column, binCapacity int) (*TilePlan, error) {
	if zoom < 0 || zoom >= len(info.Resolutions) {
		return nil, fmt.Errorf("%w: zoom %d outside [0, %d)", ErrCoordinateOutOfRange, zoom, len(info.Resolutions))
	}
	if column < 0 {
		return nil, fmt.Errorf("%w: negative tile column %d", ErrCoordinateOutOfRange, column)
	}

	genome := info.Genome()
	tileWidth := float64(info.MaxWidth) / math.Exp2(float64(zoom))
	start := info.MinPos[0] + int(math.Floor(float64(column)*tileWidth))
	end := info.MinPos[0] + int(math.Floor(float64(column+1)*tileWidth))
	end = min(end, genome.TotalLength())

	from, err := genome.MapToGenomic(start)
	if err != nil {
		return nil, fmt.Errorf("tile %d.%d: %w", zoom, column, err)
	}
	to, err := genome.MapEndToGenomic(end)
	if err != nil {
		return nil, fmt.Errorf("tile %d.%d: %w", zoom, column, err)
	}

	binSize := info.Resolutions[zoom]
	descriptors, err := PlanChunks(genome.Chroms(), from, to, binSize, binCapacity)
	if err != nil {
		return nil, fmt.Errorf("tile %d.%d: %w", zoom, column, err)
	}

	return &TilePlan{
		Zoom:        zoom,
		Column:      column,
		Start:       start,
		End:         end,
		BinSize:     binSize,
		From:        from,
		To:          to,
		Descriptors: descriptors,
	}, nil
}

// Tile builds tile (zoom, column).
func (f *Fetcher) Tile(ctx context.Context, zoom, column int) (*Tile, error) {
	return f.tile(ctx, zoom, column, TileID(zoom, column))
}

func (f *Fetcher) tile(ctx context.Context, zoom, column int, id string) (*Tile, error) {
	info, err := f.TilesetInfo(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := planTile(info, zoom, column, f.binCapacity)
	if err != nil {
		return nil, err
	}

	chunks, err := NewChunkFetcher(f.store, info.NumSamples()).FetchAll(ctx, plan.Descriptors, plan.BinSize)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", id, err)
	}

	return AssembleTile(chunks, info.NumSamples(), zoom, column, id)
}

// TileResult is one entry of a batch: a tile or the error that failed it.
type TileResult struct {
	Tile *Tile
	Err  error
}

// FetchTiles builds every well-formed tile identifier in ids concurrently and
// waits for all of them. Malformed identifiers are logged and left out of the
// result. A failing tile only fails its own entry; each tile runs under its
// own timeout.
func (f *Fetcher) FetchTiles(ctx context.Context, ids []string) map[string]TileResult {
	results := make(map[string]TileResult, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, id := range ids {
		zoom, column, ok := ParseTileID(id)
		if !ok {
			f.logger.Warn("invalid tile zoom or position", "tile", id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		wg.Add(1)
		go func() {
			defer wg.Done()

			tctx, cancel := context.WithTimeout(ctx, f.tileTimeout)
			defer cancel()

			tile, err := f.tile(tctx, zoom, column, id)
			if err != nil {
				f.logger.Warn("tile failed", "tile", id, "err", err)
			}

			mu.Lock()
			results[id] = TileResult{Tile: tile, Err: err}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

// TileID formats the identifier of tile (zoom, column).
func TileID(zoom, column int) string {
	return strconv.Itoa(zoom) + "." + strconv.Itoa(column)
}

// ParseTileID parses "zoom.column[.extra...]". Both fields must be
// non-negative integers; extra segments are ignored.
func ParseTileID(id string) (zoom, column int, ok bool) {
	parts := strings.Split(id, ".")
	if len(parts) < 2 {
		return 0, 0, false
	}
	zoom, err := strconv.Atoi(parts[0])
	if err != nil || zoom < 0 {
		return 0, 0, false
	}
	column, err = strconv.Atoi(parts[1])
	if err != nil || column < 0 {
		return 0, 0, false
	}
	return zoom, column, true
}
