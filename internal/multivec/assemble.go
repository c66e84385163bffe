package multivec

import (
	"fmt"
	"math"
)

// Extrema are the value statistics used for color-scale normalization.
// MinNonZero and MaxNonZero only consider strictly positive values and are
// nil when the tile has none. NaN values are ignored throughout.
type Extrema struct {
	Min        float32
	Max        float32
	MinNonZero *float32
	MaxNonZero *float32
}

// Tile is one assembled tile: a dense samples × width buffer.
type Tile struct {
	ID      string
	Zoom    int
	Column  int
	Dense   []float32
	Shape   [2]int
	Extrema Extrema
}

// AssembleTile concatenates chunks along the position axis, sample by sample,
// so that each sample's row is one continuous genomic window.
func AssembleTile(chunks []RawChunk, numSamples, zoom, column int, id string) (*Tile, error) {
	width := 0
	for _, c := range chunks {
		if c.Shape[0] != numSamples && c.Shape[1] != 0 {
			return nil, fmt.Errorf("chunk %s has %d samples, want %d", c.Descriptor.Chrom, c.Shape[0], numSamples)
		}
		if len(c.Data) < c.Shape[0]*c.Shape[1] {
			return nil, fmt.Errorf("chunk %s data too short: %d < %d", c.Descriptor.Chrom, len(c.Data), c.Shape[0]*c.Shape[1])
		}
		width += c.Shape[1]
	}

	dense := make([]float32, numSamples*width)
	for s := 0; s < numSamples; s++ {
		off := s * width
		for _, c := range chunks {
			w := c.Shape[1]
			copy(dense[off:off+w], c.Data[s*w:(s+1)*w])
			off += w
		}
	}

	return &Tile{
		ID:      id,
		Zoom:    zoom,
		Column:  column,
		Dense:   dense,
		Shape:   [2]int{numSamples, width},
		Extrema: ComputeExtrema(dense),
	}, nil
}

// ComputeExtrema scans the whole buffer once. An empty or all-NaN buffer has
// Min = Max = 0.
func ComputeExtrema(values []float32) Extrema {
	var (
		ext      Extrema
		seen     bool
		minPos   = float32(math.Inf(1))
		maxPos   = float32(math.Inf(-1))
		positive bool
	)
	for _, v := range values {
		if v != v {
			continue
		}
		if !seen {
			ext.Min, ext.Max = v, v
			seen = true
		} else if v < ext.Min {
			ext.Min = v
		} else if v > ext.Max {
			ext.Max = v
		}
		if v > 0 {
			positive = true
			minPos = min(minPos, v)
			maxPos = max(maxPos, v)
		}
	}
	if positive {
		ext.MinNonZero = &minPos
		ext.MaxNonZero = &maxPos
	}
	return ext
}
