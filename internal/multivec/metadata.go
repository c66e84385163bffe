package multivec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMetadataKey is where the tileset metadata document lives in a multivec group.
const DefaultMetadataKey = ".zattrs"

// metadataLoadTimeout bounds a shared metadata load, which no single caller
// can cancel.
const metadataLoadTimeout = 30 * time.Second

// ChromSize is one (name, length) entry. It is encoded as a two-element JSON array.
type ChromSize struct {
	Name   string
	Length int
}

// UnmarshalJSON decodes ["chr1", 248956422].
func (c *ChromSize) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("chromosome entry needs [name, length], got %s", data)
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return fmt.Errorf("chromosome name: %w", err)
	}
	var length float64
	if err := json.Unmarshal(pair[1], &length); err != nil {
		return fmt.Errorf("chromosome %q length: %w", c.Name, err)
	}
	if length != math.Trunc(length) {
		return fmt.Errorf("chromosome %q length is not an integer: %v", c.Name, length)
	}
	c.Length = int(length)
	return nil
}

// MarshalJSON encodes the pair form.
func (c ChromSize) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{c.Name, c.Length})
}

// TilesetInfo is the resolved tileset metadata. It is immutable once returned
// by a MetadataResolver and safe to share between goroutines.
type TilesetInfo struct {
	TileSize    int         `json:"tile_size"`
	MaxPos      []int       `json:"max_pos"`
	MinPos      []int       `json:"min_pos"`
	MaxZoom     int         `json:"max_zoom"`
	MaxWidth    int         `json:"max_width"`
	Resolutions []int       `json:"resolutions"`
	ChromSizes  []ChromSize `json:"chromSizes"`
	Shape       []int       `json:"shape"`

	genome *Genome
}

// Genome returns the coordinate mapper built from ChromSizes.
func (t *TilesetInfo) Genome() *Genome { return t.genome }

// NumSamples is the number of matrix rows.
func (t *TilesetInfo) NumSamples() int { return t.Shape[0] }

// tilesetDoc mirrors the stored document. Numbers are decoded as float64
// because writers emit genome lengths like 3.1e9.
type tilesetDoc struct {
	TileSize    float64     `json:"tile_size"`
	MaxPos      []float64   `json:"max_pos"`
	MinPos      []float64   `json:"min_pos"`
	MaxZoom     *float64    `json:"max_zoom"`
	MaxWidth    *float64    `json:"max_width"`
	Resolutions []float64   `json:"resolutions"`
	ChromSizes  []ChromSize `json:"chromSizes"`
	Shape       []float64   `json:"shape"`
}

// ParseTilesetInfo decodes and validates a metadata document and fills in the
// derived fields. Resolutions are ordered coarsest first so that the index is
// the zoom level.
func ParseTilesetInfo(data []byte) (*TilesetInfo, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMetadataParse, err)
	}
	if err := tilesetSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataParse, err)
	}

	var doc tilesetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataParse, err)
	}

	info := &TilesetInfo{
		TileSize:    int(doc.TileSize),
		MaxPos:      toInts(doc.MaxPos),
		MinPos:      toInts(doc.MinPos),
		Resolutions: toInts(doc.Resolutions),
		ChromSizes:  doc.ChromSizes,
		Shape:       toInts(doc.Shape),
	}
	if len(info.MinPos) == 0 {
		info.MinPos = []int{0}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(info.Resolutions)))

	seen := make(map[string]struct{}, len(info.ChromSizes))
	for _, c := range info.ChromSizes {
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate chromosome %q", ErrMetadataParse, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	if doc.MaxZoom != nil {
		info.MaxZoom = int(*doc.MaxZoom)
	} else {
		info.MaxZoom = maxZoomFor(info.MaxPos[0], info.TileSize)
	}
	if doc.MaxWidth != nil {
		info.MaxWidth = int(*doc.MaxWidth)
	} else {
		info.MaxWidth = info.TileSize << info.MaxZoom
	}

	info.genome = NewGenome(info.ChromSizes)
	return info, nil
}

// maxZoomFor returns ceil(log2(maxPos / tileSize)), never negative.
func maxZoomFor(maxPos, tileSize int) int {
	if maxPos <= tileSize {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(maxPos) / float64(tileSize))))
}

func toInts(fs []float64) []int {
	if fs == nil {
		return nil
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = int(f)
	}
	return out
}

// KeyReader reads whole objects by key.
type KeyReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// MetadataResolver fetches the tileset metadata once and memoizes it until Reset.
// Concurrent first calls share a single store read. Failures are not cached.
type MetadataResolver struct {
	store  KeyReader
	key    string
	logger *slog.Logger

	mu    sync.RWMutex
	info  *TilesetInfo
	gen   uint64
	group singleflight.Group
}

// NewMetadataResolver creates a resolver reading key from store.
func NewMetadataResolver(store KeyReader, key string, logger *slog.Logger) *MetadataResolver {
	if key == "" {
		key = DefaultMetadataKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataResolver{store: store, key: key, logger: logger}
}

// Resolve returns the tileset metadata, reading it from the store on first use.
// The shared read is detached from ctx: a caller giving up returns its own
// context error while the others keep waiting for the result.
func (r *MetadataResolver) Resolve(ctx context.Context) (*TilesetInfo, error) {
	r.mu.RLock()
	info, gen := r.info, r.gen
	r.mu.RUnlock()
	if info != nil {
		return info, nil
	}

	ch := r.group.DoChan(r.key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metadataLoadTimeout)
		defer cancel()

		info, err := r.load(lctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		// A Reset during the load makes this result stale.
		if r.gen == gen {
			r.info = info
		}
		r.mu.Unlock()
		return info, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TilesetInfo), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataFetch, r.key, ctx.Err())
	}
}

// Reset drops the memoized metadata; the next Resolve reads the store again.
// A load already in flight is not memoized and later callers start a new one.
func (r *MetadataResolver) Reset() {
	r.mu.Lock()
	r.info = nil
	r.gen++
	r.mu.Unlock()
	r.group.Forget(r.key)
}

func (r *MetadataResolver) load(ctx context.Context) (*TilesetInfo, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataFetch, r.key, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty document", ErrMetadataFetch, r.key)
	}

	info, err := ParseTilesetInfo(data)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved tileset metadata",
		"key", r.key,
		"chromosomes", len(info.ChromSizes),
		"resolutions", len(info.Resolutions),
		"max_zoom", info.MaxZoom,
		"samples", info.NumSamples())
	return info, nil
}
