package multivec

import (
	"errors"
	"fmt"
)

// Error kinds returned by the tile pipeline. Use errors.Is to classify.
var (
	ErrMetadataFetch        = errors.New("metadata fetch failed")
	ErrMetadataParse        = errors.New("metadata parse failed")
	ErrCoordinateOutOfRange = errors.New("coordinate out of range")
	ErrChunkFetch           = errors.New("chunk fetch failed")
)

// ChunkFetchError reports the chunk read that failed a tile.
type ChunkFetchError struct {
	Descriptor ChunkDescriptor
	Err        error
}

func (e *ChunkFetchError) Error() string {
	return fmt.Sprintf("%v: %s[%d:%d]: %v", ErrChunkFetch, e.Descriptor.Chrom, e.Descriptor.BinStart, e.Descriptor.BinEnd, e.Err)
}

func (e *ChunkFetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrChunkFetch) hold for every ChunkFetchError.
func (e *ChunkFetchError) Is(target error) bool { return target == ErrChunkFetch }
