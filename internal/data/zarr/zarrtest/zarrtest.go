// Package zarrtest writes small multivec Zarr groups into blob buckets for tests.
package zarrtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
)

// Chrom is one (name, length) entry of a genome assembly.
type Chrom struct {
	Name   string
	Length int
}

// Dataset describes a multivec group to generate.
type Dataset struct {
	Chroms      []Chrom
	Resolutions []int
	TileSize    int
	NumSamples  int
	ChunkCols   int    // chunk width along the bin axis (default 64)
	Compressor  string // "", "zstd" or "gzip"

	// Value returns the stored value; nil stores sample+1 everywhere.
	Value func(sample int, chrom string, resolution, bin int) float32
}

// ArrayPath returns the storage path of one chromosome at one resolution.
func ArrayPath(chrom string, resolution int) string {
	return path.Join("chromosomes", chrom, strconv.Itoa(resolution))
}

// WriteMultivec writes the group metadata and every per-chromosome array under prefix.
func WriteMultivec(ctx context.Context, b *blob.Bucket, prefix string, ds Dataset) error {
	total := 0
	chromSizes := make([][2]interface{}, 0, len(ds.Chroms))
	for _, c := range ds.Chroms {
		total += c.Length
		chromSizes = append(chromSizes, [2]interface{}{c.Name, c.Length})
	}

	attrs := map[string]interface{}{
		"tile_size":   ds.TileSize,
		"max_pos":     []int{total},
		"resolutions": ds.Resolutions,
		"chromSizes":  chromSizes,
		"shape":       []int{ds.NumSamples, ds.TileSize},
	}
	attrBytes, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	if err := b.WriteAll(ctx, path.Join(prefix, ".zattrs"), attrBytes, nil); err != nil {
		return err
	}

	chunkCols := ds.ChunkCols
	if chunkCols <= 0 {
		chunkCols = 64
	}

	for _, res := range ds.Resolutions {
		for _, c := range ds.Chroms {
			nBins := (c.Length + res - 1) / res
			rows := make([][]float32, ds.NumSamples)
			for s := range rows {
				rows[s] = make([]float32, nBins)
				for bin := range rows[s] {
					if ds.Value != nil {
						rows[s][bin] = ds.Value(s, c.Name, res, bin)
					} else {
						rows[s][bin] = float32(s + 1)
					}
				}
			}
			arrayPath := path.Join(prefix, ArrayPath(c.Name, res))
			if err := WriteArray(ctx, b, arrayPath, rows, [2]int{ds.NumSamples, chunkCols}, ds.Compressor); err != nil {
				return fmt.Errorf("write %s: %w", arrayPath, err)
			}
		}
	}
	return nil
}

// WriteArray writes a 2-D <f4 array with the given chunk shape.
func WriteArray(ctx context.Context, b *blob.Bucket, arrayPath string, rows [][]float32, chunks [2]int, compressor string) error {
	nRows := len(rows)
	nCols := 0
	if nRows > 0 {
		nCols = len(rows[0])
	}

	meta := map[string]interface{}{
		"zarr_format": 2,
		"shape":       []int{nRows, nCols},
		"chunks":      []int{chunks[0], chunks[1]},
		"dtype":       "<f4",
		"fill_value":  0,
		"order":       "C",
		"filters":     nil,
		"compressor":  nil,
	}
	if compressor != "" {
		meta["compressor"] = map[string]interface{}{"id": compressor}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := b.WriteAll(ctx, path.Join(arrayPath, ".zarray"), metaBytes, nil); err != nil {
		return err
	}

	for rc := 0; rc*chunks[0] < nRows; rc++ {
		for cc := 0; cc*chunks[1] < nCols; cc++ {
			buf := make([]byte, chunks[0]*chunks[1]*4)
			for i := 0; i < chunks[0]; i++ {
				for j := 0; j < chunks[1]; j++ {
					r, c := rc*chunks[0]+i, cc*chunks[1]+j
					if r >= nRows || c >= nCols {
						continue
					}
					binary.LittleEndian.PutUint32(buf[(i*chunks[1]+j)*4:], math.Float32bits(rows[r][c]))
				}
			}
			encoded, err := compress(compressor, buf)
			if err != nil {
				return err
			}
			key := path.Join(arrayPath, fmt.Sprintf("%d.%d", rc, cc))
			if err := b.WriteAll(ctx, key, encoded, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func compress(id string, raw []byte) ([]byte, error) {
	switch id {
	case "":
		return raw, nil
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case "gzip":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compressor %q", id)
	}
}
