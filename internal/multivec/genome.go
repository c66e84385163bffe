package multivec

import (
	"fmt"
	"sort"
)

// GenomicPosition is an absolute coordinate expressed relative to its chromosome.
type GenomicPosition struct {
	Chrom string `json:"chrom"`
	Pos   int    `json:"pos"`
}

// Genome maps the linear coordinate system defined by an ordered list of
// chromosome sizes onto (chromosome, position) pairs.
type Genome struct {
	chroms  []ChromSize
	offsets []int // offsets[i] = sum of lengths of chroms[0..i-1]
	index   map[string]int
	total   int
}

// NewGenome builds the cumulative offset table for chroms in the given order.
func NewGenome(chroms []ChromSize) *Genome {
	g := &Genome{
		chroms:  chroms,
		offsets: make([]int, len(chroms)),
		index:   make(map[string]int, len(chroms)),
	}
	for i, c := range chroms {
		g.offsets[i] = g.total
		g.index[c.Name] = i
		g.total += c.Length
	}
	return g
}

// TotalLength is the sum of all chromosome lengths.
func (g *Genome) TotalLength() int { return g.total }

// Chroms returns the chromosome table in coordinate order.
func (g *Genome) Chroms() []ChromSize { return g.chroms }

// Index returns the position of the named chromosome in coordinate order.
func (g *Genome) Index(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Offset returns the absolute coordinate at which the named chromosome starts.
func (g *Genome) Offset(name string) (int, bool) {
	i, ok := g.index[name]
	if !ok {
		return 0, false
	}
	return g.offsets[i], true
}

// MapToGenomic converts an absolute position in [0, TotalLength) to the
// chromosome containing it and the position relative to that chromosome.
func (g *Genome) MapToGenomic(pos int) (GenomicPosition, error) {
	if pos < 0 || pos >= g.total {
		return GenomicPosition{}, fmt.Errorf("%w: position %d outside [0, %d)", ErrCoordinateOutOfRange, pos, g.total)
	}
	// First chromosome whose end lies beyond pos.
	i := sort.Search(len(g.chroms), func(i int) bool {
		return g.offsets[i]+g.chroms[i].Length > pos
	})
	return GenomicPosition{Chrom: g.chroms[i].Name, Pos: pos - g.offsets[i]}, nil
}

// MapEndToGenomic maps the exclusive end of a range. It accepts TotalLength,
// which maps to the end of the last chromosome.
func (g *Genome) MapEndToGenomic(end int) (GenomicPosition, error) {
	if end == g.total && len(g.chroms) > 0 {
		last := g.chroms[len(g.chroms)-1]
		return GenomicPosition{Chrom: last.Name, Pos: last.Length}, nil
	}
	return g.MapToGenomic(end)
}

// MapToGenomic maps one absolute position using chromSizes in their given order.
func MapToGenomic(chromSizes []ChromSize, pos int) (GenomicPosition, error) {
	return NewGenome(chromSizes).MapToGenomic(pos)
}
