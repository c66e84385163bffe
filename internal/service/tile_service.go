// Package service provides business logic for the tile server.
package service

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/multivec-tiles/server/internal/cache"
	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/multivec-tiles/server/internal/render"
)

// TileServiceConfig contains tile service configuration.
type TileServiceConfig struct {
	DatasetID string
	Name      string
	Fetcher   *multivec.Fetcher
	Cache     *cache.Manager
	Renderer  *render.TileRenderer
	Logger    *slog.Logger
}

// TileService serves tiles and metadata of one multivec dataset.
type TileService struct {
	datasetID string
	name      string
	fetcher   *multivec.Fetcher
	cache     *cache.Manager
	renderer  *render.TileRenderer
	logger    *slog.Logger

	// gen is bumped by Reset; cache keys carry it so entries built from
	// older metadata are never served again.
	gen atomic.Uint64
}

// NewTileService creates a new tile service.
func NewTileService(cfg TileServiceConfig) *TileService {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	name := cfg.Name
	if name == "" {
		name = datasetID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TileService{
		datasetID: datasetID,
		name:      name,
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		renderer:  cfg.Renderer,
		logger:    logger.With("dataset", datasetID),
	}
}

// DatasetID returns the dataset identifier.
func (s *TileService) DatasetID() string { return s.datasetID }

// cacheNamespace scopes cache keys to the current metadata generation.
func (s *TileService) cacheNamespace() string {
	return fmt.Sprintf("%s@%d", s.datasetID, s.gen.Load())
}

// Name returns the display name.
func (s *TileService) Name() string { return s.name }

// TilesetInfoResponse is the tileset_info document of one dataset.
type TilesetInfoResponse struct {
	*multivec.TilesetInfo
	Name     string `json:"name"`
	Datatype string `json:"datatype"`
	TrackUID string `json:"uuid"`
}

// TilesetInfo returns the encoded tileset info, or {"error": ...} when the
// metadata cannot be resolved. Only successful documents are cached.
func (s *TileService) TilesetInfo(ctx context.Context) json.RawMessage {
	key := cache.InfoKey(s.cacheNamespace())
	if s.cache != nil {
		if data, ok := s.cache.GetInfo(key); ok {
			return data
		}
	}

	res := s.fetcher.TilesetInfoResult(ctx)
	if res.Error != "" {
		data, _ := json.Marshal(res)
		return data
	}

	data, err := json.Marshal(TilesetInfoResponse{
		TilesetInfo: res.Info,
		Name:        s.name,
		Datatype:    "multivec",
		TrackUID:    s.fetcher.TrackUID(),
	})
	if err != nil {
		data, _ = json.Marshal(errorBody(err))
		return data
	}
	if s.cache != nil {
		s.cache.SetInfo(key, data)
	}
	return data
}

// TileResponse is the JSON encoding of one tile. Dense holds the
// samples × bins buffer as little-endian float32, base64 encoded.
type TileResponse struct {
	Dense          string   `json:"dense"`
	DType          string   `json:"dtype"`
	Shape          [2]int   `json:"shape"`
	MinValue       float32  `json:"min_value"`
	MaxValue       float32  `json:"max_value"`
	MinNonZero     *float32 `json:"min_nonzero"`
	MaxNonZero     *float32 `json:"max_nonzero"`
	ZoomLevel      int      `json:"zoom_level"`
	TilePos        []int    `json:"tile_pos"`
	TilePositionID string   `json:"tilePositionId"`
}

// EncodeTile converts an assembled tile into its JSON response.
func EncodeTile(t *multivec.Tile) TileResponse {
	buf := make([]byte, 4*len(t.Dense))
	for i, v := range t.Dense {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return TileResponse{
		Dense:          base64.StdEncoding.EncodeToString(buf),
		DType:          "float32",
		Shape:          t.Shape,
		MinValue:       t.Extrema.Min,
		MaxValue:       t.Extrema.Max,
		MinNonZero:     t.Extrema.MinNonZero,
		MaxNonZero:     t.Extrema.MaxNonZero,
		ZoomLevel:      t.Zoom,
		TilePos:        []int{t.Column},
		TilePositionID: t.ID,
	}
}

// DecodeDense reverses the dense encoding of a TileResponse.
func DecodeDense(dense string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(dense)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("dense buffer length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// Tiles returns the encoded tiles for ids ("zoom.column"). Malformed ids are
// left out. Failed tiles are encoded as {"error": ...} and not cached.
func (s *TileService) Tiles(ctx context.Context, ids []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(ids))
	ns := s.cacheNamespace()

	var misses []string
	for _, id := range ids {
		if s.cache != nil {
			if data, ok := s.cache.GetTile(cache.TileKey(ns, id)); ok {
				out[id] = data
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out
	}

	for id, res := range s.fetcher.FetchTiles(ctx, misses) {
		if res.Err != nil {
			s.logger.Warn("tile failed", "tile", id, "err", res.Err)
			data, _ := json.Marshal(errorBody(res.Err))
			out[id] = data
			continue
		}

		data, err := json.Marshal(EncodeTile(res.Tile))
		if err != nil {
			data, _ = json.Marshal(errorBody(err))
			out[id] = data
			continue
		}
		out[id] = data
		if s.cache != nil {
			if err := s.cache.SetTile(cache.TileKey(ns, id), data); err != nil {
				s.logger.Debug("tile not cached", "tile", id, "err", err)
			}
		}
	}
	return out
}

// Preview renders tile (zoom, column) as a PNG heatmap.
func (s *TileService) Preview(ctx context.Context, zoom, column int, colormapName string) ([]byte, error) {
	key := cache.PreviewKey(s.cacheNamespace(), zoom, column, colormapName)
	if s.cache != nil {
		if data, ok := s.cache.GetTile(key); ok {
			return data, nil
		}
	}

	info, err := s.fetcher.TilesetInfo(ctx)
	if err != nil {
		return nil, err
	}
	tile, err := s.fetcher.Tile(ctx, zoom, column)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.RenderTile(tile, info.TileSize, colormapName)
	if err != nil {
		return nil, fmt.Errorf("render tile %s: %w", tile.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.SetTile(key, data); err != nil {
			s.logger.Debug("preview not cached", "tile", tile.ID, "err", err)
		}
	}
	return data, nil
}

// EmptyPreview returns a transparent placeholder image.
func (s *TileService) EmptyPreview() ([]byte, error) {
	return s.renderer.CreateEmptyTile(0)
}

// Reset drops the memoized metadata so the next request re-reads it. Cached
// info, tiles and previews of the previous generation stop being served.
func (s *TileService) Reset() {
	old := s.cacheNamespace()
	s.gen.Add(1)
	s.fetcher.Reset()
	if s.cache != nil {
		s.cache.DeleteInfo(cache.InfoKey(old))
	}
}
