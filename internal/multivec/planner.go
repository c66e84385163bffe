package multivec

import "fmt"

// DefaultBinCapacity is the number of bins a tile holds along the position axis.
const DefaultBinCapacity = 256

// ChunkDescriptor is a half-open bin range of one chromosome's array.
type ChunkDescriptor struct {
	Chrom    string `json:"chrom"`
	BinStart int    `json:"bin_start"`
	BinEnd   int    `json:"bin_end"`
}

// Width is the number of bins covered.
func (d ChunkDescriptor) Width() int { return d.BinEnd - d.BinStart }

// PlanChunks splits the tile range [start, end) into per-chromosome bin ranges.
//
// Descriptors follow the chromosome order of chromSizes. The first chromosome
// contributes from start.Pos to its end, interior chromosomes contribute their
// full length and the last contributes up to end.Pos. The total number of bins
// across all descriptors never exceeds binCapacity; once it is used up the
// remaining chromosomes get empty descriptors.
func PlanChunks(chromSizes []ChromSize, start, end GenomicPosition, binSize, binCapacity int) ([]ChunkDescriptor, error) {
	if binSize <= 0 {
		return nil, fmt.Errorf("invalid bin size: %d", binSize)
	}
	if binCapacity <= 0 {
		binCapacity = DefaultBinCapacity
	}

	if start.Chrom == end.Chrom {
		binStart := start.Pos / binSize
		binEnd := max(binStart, min(binStart+binCapacity, ceilDiv(end.Pos, binSize)))
		return []ChunkDescriptor{{Chrom: start.Chrom, BinStart: binStart, BinEnd: binEnd}}, nil
	}

	first, last := -1, -1
	for i, c := range chromSizes {
		switch c.Name {
		case start.Chrom:
			first = i
		case end.Chrom:
			last = i
		}
	}
	if first < 0 || last < 0 {
		return nil, fmt.Errorf("%w: unknown chromosome in range %s:%d-%s:%d", ErrCoordinateOutOfRange, start.Chrom, start.Pos, end.Chrom, end.Pos)
	}
	if last < first {
		return nil, fmt.Errorf("%w: range end %s precedes start %s", ErrCoordinateOutOfRange, end.Chrom, start.Chrom)
	}

	remaining := binCapacity
	descriptors := make([]ChunkDescriptor, 0, last-first+1)
	for i := first; i <= last; i++ {
		lo, hi := 0, chromSizes[i].Length
		if i == first {
			lo = start.Pos
		}
		if i == last {
			hi = end.Pos
		}

		binStart := lo / binSize
		binEnd := max(binStart, min(binStart+remaining, ceilDiv(hi, binSize)))
		remaining -= binEnd - binStart

		descriptors = append(descriptors, ChunkDescriptor{
			Chrom:    chromSizes[i].Name,
			BinStart: binStart,
			BinEnd:   binEnd,
		})
	}
	return descriptors, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
