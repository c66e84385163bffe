package multivec

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// SliceReader reads a rows × cols selection of the 2-D array stored at path.
// Selections past the array edge are clamped; the returned shape is the
// shape actually read.
type SliceReader interface {
	ReadSlice(ctx context.Context, path string, rows, cols [2]int) ([]float32, [2]int, error)
}

// ChunkStore is the store a Fetcher reads metadata and chunk data from.
type ChunkStore interface {
	KeyReader
	SliceReader
}

// ChunkPath is the array holding one chromosome at one resolution.
func ChunkPath(chrom string, resolution int) string {
	return path.Join("chromosomes", chrom, strconv.Itoa(resolution))
}

// RawChunk is the data read for one descriptor, row-major samples × width.
type RawChunk struct {
	Descriptor ChunkDescriptor
	Data       []float32
	Shape      [2]int
}

// ChunkFetcher reads the chunks of one tile concurrently.
type ChunkFetcher struct {
	store      SliceReader
	numSamples int
}

// NewChunkFetcher creates a fetcher reading numSamples rows per chunk.
func NewChunkFetcher(store SliceReader, numSamples int) *ChunkFetcher {
	return &ChunkFetcher{store: store, numSamples: numSamples}
}

// FetchAll reads every descriptor in parallel and returns the chunks in
// descriptor order. The first failure cancels the remaining reads and is
// returned as a *ChunkFetchError; no partial result is returned.
func (f *ChunkFetcher) FetchAll(ctx context.Context, descriptors []ChunkDescriptor, resolution int) ([]RawChunk, error) {
	chunks := make([]RawChunk, len(descriptors))
	g, gctx := errgroup.WithContext(ctx)

	for i, d := range descriptors {
		if d.Width() == 0 {
			chunks[i] = RawChunk{Descriptor: d, Shape: [2]int{f.numSamples, 0}}
			continue
		}
		g.Go(func() error {
			data, shape, err := f.store.ReadSlice(gctx, ChunkPath(d.Chrom, resolution),
				[2]int{0, f.numSamples}, [2]int{d.BinStart, d.BinEnd})
			if err != nil {
				return &ChunkFetchError{Descriptor: d, Err: err}
			}
			if shape[0] != f.numSamples {
				return &ChunkFetchError{
					Descriptor: d,
					Err:        fmt.Errorf("expected %d samples, array has %d", f.numSamples, shape[0]),
				}
			}
			chunks[i] = RawChunk{Descriptor: d, Data: data, Shape: shape}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
