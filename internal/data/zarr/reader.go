// Package zarr provides a reader for Zarr v2 arrays held in an object store.
package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/multivec-tiles/server/internal/store"
)

const defaultMetaCacheSize = 4096

// Reader provides access to the arrays of one Zarr group.
type Reader struct {
	store   store.Store
	decoder *zstd.Decoder

	// .zarray documents keyed by array path
	metas *lru.Cache[string, *ArrayMeta]
}

// ArrayMeta represents Zarr v2 array metadata (.zarray).
type ArrayMeta struct {
	Shape              []int       `json:"shape"`
	Chunks             []int       `json:"chunks"`
	DType              string      `json:"dtype"`
	Compressor         *Compressor `json:"compressor"`
	FillValue          interface{} `json:"fill_value"`
	Order              string      `json:"order"`
	DimensionSeparator string      `json:"dimension_separator,omitempty"`
	ZarrFormat         int         `json:"zarr_format"`
}

// Compressor is the numcodecs compressor configuration of an array.
type Compressor struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// NewReader creates a reader over s. The reader does not own s.
func NewReader(s store.Store) (*Reader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	metas, err := lru.New[string, *ArrayMeta](defaultMetaCacheSize)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to create array metadata cache: %w", err)
	}

	return &Reader{
		store:   s,
		decoder: decoder,
		metas:   metas,
	}, nil
}

// Get reads a raw key from the underlying store.
func (r *Reader) Get(ctx context.Context, key string) ([]byte, error) {
	return r.store.Get(ctx, key)
}

// ArrayMeta loads the .zarray document of the array at arrayPath.
func (r *Reader) ArrayMeta(ctx context.Context, arrayPath string) (*ArrayMeta, error) {
	arrayPath = strings.Trim(arrayPath, "/")
	if meta, ok := r.metas.Get(arrayPath); ok {
		return meta, nil
	}

	data, err := r.store.Get(ctx, path.Join(arrayPath, ".zarray"))
	if err != nil {
		return nil, err
	}

	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s/.zarray: %w", arrayPath, err)
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s/.zarray: %w", arrayPath, err)
	}

	r.metas.Add(arrayPath, &meta)
	return &meta, nil
}

func (m *ArrayMeta) validate() error {
	if m.ZarrFormat != 0 && m.ZarrFormat != 2 {
		return fmt.Errorf("unsupported zarr_format %d", m.ZarrFormat)
	}
	if len(m.Shape) == 0 || len(m.Chunks) == 0 {
		return fmt.Errorf("missing shape/chunks")
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape dims (%d) != chunk dims (%d)", len(m.Shape), len(m.Chunks))
	}
	for d, c := range m.Chunks {
		if c <= 0 {
			return fmt.Errorf("invalid chunk size at dim %d: %d", d, c)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported order %q", m.Order)
	}
	if _, err := parseDType(m.DType); err != nil {
		return err
	}
	return nil
}

func (r *Reader) encodeChunkKey(meta *ArrayMeta, chunkIndices []int) string {
	sep := meta.DimensionSeparator
	if sep == "" {
		sep = "."
	}
	parts := make([]string, len(chunkIndices))
	for i, idx := range chunkIndices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, sep)
}

// readChunkAt reads and decodes one chunk. ok is false when the chunk is not
// stored, which Zarr defines as a chunk filled with fill_value.
func (r *Reader) readChunkAt(ctx context.Context, arrayPath string, meta *ArrayMeta, chunkIndices []int) ([]byte, bool, error) {
	key := path.Join(arrayPath, r.encodeChunkKey(meta, chunkIndices))
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	data, err := r.decompress(meta.Compressor, raw)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %s: %w", key, err)
	}
	return data, true, nil
}

// ReadSlice reads the half-open selection rows × cols of a 2-D array and
// returns it row-major as float32 together with its shape. Selections that
// run past the array edge are clamped, so the returned shape may be narrower
// than requested.
func (r *Reader) ReadSlice(ctx context.Context, arrayPath string, rows, cols [2]int) ([]float32, [2]int, error) {
	arrayPath = strings.Trim(arrayPath, "/")
	meta, err := r.ArrayMeta(ctx, arrayPath)
	if err != nil {
		return nil, [2]int{}, err
	}
	if len(meta.Shape) != 2 {
		return nil, [2]int{}, fmt.Errorf("array %s: expected 2 dims, got shape %v", arrayPath, meta.Shape)
	}
	if rows[0] < 0 || cols[0] < 0 || rows[1] < rows[0] || cols[1] < cols[0] {
		return nil, [2]int{}, fmt.Errorf("array %s: invalid selection rows=%v cols=%v", arrayPath, rows, cols)
	}

	rows[1] = min(rows[1], meta.Shape[0])
	cols[1] = min(cols[1], meta.Shape[1])
	rows[0] = min(rows[0], rows[1])
	cols[0] = min(cols[0], cols[1])

	nRows := rows[1] - rows[0]
	nCols := cols[1] - cols[0]
	out := make([]float32, nRows*nCols)
	if nRows == 0 || nCols == 0 {
		return out, [2]int{nRows, nCols}, nil
	}

	dt, _ := parseDType(meta.DType)
	fill, err := fillValue(meta.FillValue)
	if err != nil {
		return nil, [2]int{}, fmt.Errorf("array %s: %w", arrayPath, err)
	}

	chunkRows := meta.Chunks[0]
	chunkCols := meta.Chunks[1]
	// v2 chunks are always stored at full chunk shape, edge chunks included.
	chunkBytes := chunkRows * chunkCols * dt.size

	for rc := rows[0] / chunkRows; rc <= (rows[1]-1)/chunkRows; rc++ {
		chunkRowStart := rc * chunkRows
		rowLo := max(rows[0], chunkRowStart)
		rowHi := min(rows[1], chunkRowStart+chunkRows)

		for cc := cols[0] / chunkCols; cc <= (cols[1]-1)/chunkCols; cc++ {
			chunkColStart := cc * chunkCols
			colLo := max(cols[0], chunkColStart)
			colHi := min(cols[1], chunkColStart+chunkCols)

			chunkData, ok, err := r.readChunkAt(ctx, arrayPath, meta, []int{rc, cc})
			if err != nil {
				return nil, [2]int{}, fmt.Errorf("failed to load chunk %d.%d of %s: %w", rc, cc, arrayPath, err)
			}
			if ok && len(chunkData) < chunkBytes {
				return nil, [2]int{}, fmt.Errorf("chunk %d.%d of %s too short: got %d bytes, expected %d", rc, cc, arrayPath, len(chunkData), chunkBytes)
			}

			for gr := rowLo; gr < rowHi; gr++ {
				outRow := out[(gr-rows[0])*nCols:]
				for gc := colLo; gc < colHi; gc++ {
					v := fill
					if ok {
						off := ((gr-chunkRowStart)*chunkCols + (gc - chunkColStart)) * dt.size
						v = dt.decode(chunkData[off : off+dt.size])
					}
					outRow[gc-cols[0]] = v
				}
			}
		}
	}

	return out, [2]int{nRows, nCols}, nil
}

// Close releases resources. The underlying store stays open.
func (r *Reader) Close() {
	if r.decoder != nil {
		r.decoder.Close()
	}
}
