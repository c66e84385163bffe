package multivec

import (
	"math"
	"testing"
)

func TestAssembleTile_SampleMajorConcatenation(t *testing.T) {
	// Two samples, chunks of width 2 and 3.
	chunks := []RawChunk{
		{
			Descriptor: ChunkDescriptor{"chr1", 8, 10},
			Data:       []float32{1, 2, 10, 20},
			Shape:      [2]int{2, 2},
		},
		{
			Descriptor: ChunkDescriptor{"chr2", 0, 3},
			Data:       []float32{3, 4, 5, 30, 40, 50},
			Shape:      [2]int{2, 3},
		},
	}

	tile, err := AssembleTile(chunks, 2, 4, 7, "4.7")
	if err != nil {
		t.Fatalf("AssembleTile error: %v", err)
	}
	want := []float32{1, 2, 3, 4, 5, 10, 20, 30, 40, 50}
	if len(tile.Dense) != len(want) {
		t.Fatalf("dense length = %d, want %d", len(tile.Dense), len(want))
	}
	for i := range want {
		if tile.Dense[i] != want[i] {
			t.Fatalf("dense = %v, want %v", tile.Dense, want)
		}
	}
	if tile.Shape != [2]int{2, 5} {
		t.Fatalf("shape = %v", tile.Shape)
	}
	if tile.Zoom != 4 || tile.Column != 7 || tile.ID != "4.7" {
		t.Fatalf("unexpected tile position: %+v", tile)
	}
	if tile.Extrema.Min != 1 || tile.Extrema.Max != 50 {
		t.Fatalf("unexpected extrema: %+v", tile.Extrema)
	}
}

func TestAssembleTile_EmptyChunk(t *testing.T) {
	chunks := []RawChunk{
		{Descriptor: ChunkDescriptor{"chr1", 9, 10}, Data: []float32{7, 8}, Shape: [2]int{2, 1}},
		{Descriptor: ChunkDescriptor{"chr2", 0, 0}, Shape: [2]int{2, 0}},
	}
	tile, err := AssembleTile(chunks, 2, 0, 0, "0.0")
	if err != nil {
		t.Fatalf("AssembleTile error: %v", err)
	}
	if tile.Shape != [2]int{2, 1} || tile.Dense[0] != 7 || tile.Dense[1] != 8 {
		t.Fatalf("unexpected tile: shape %v dense %v", tile.Shape, tile.Dense)
	}
}

func TestAssembleTile_ShapeMismatch(t *testing.T) {
	chunks := []RawChunk{
		{Descriptor: ChunkDescriptor{"chr1", 0, 2}, Data: []float32{1, 2}, Shape: [2]int{1, 2}},
	}
	if _, err := AssembleTile(chunks, 2, 0, 0, "0.0"); err == nil {
		t.Fatal("expected error for sample count mismatch")
	}
}

func TestComputeExtrema(t *testing.T) {
	nan := float32(math.NaN())

	t.Run("mixed", func(t *testing.T) {
		ext := ComputeExtrema([]float32{0, -3, 5, 0, 0.5, nan, 2})
		if ext.Min != -3 || ext.Max != 5 {
			t.Fatalf("min/max = %v/%v", ext.Min, ext.Max)
		}
		if ext.MinNonZero == nil || *ext.MinNonZero != 0.5 {
			t.Fatalf("MinNonZero = %v", ext.MinNonZero)
		}
		if ext.MaxNonZero == nil || *ext.MaxNonZero != 5 {
			t.Fatalf("MaxNonZero = %v", ext.MaxNonZero)
		}
	})

	t.Run("allZero", func(t *testing.T) {
		ext := ComputeExtrema([]float32{0, 0, 0})
		if ext.Min != 0 || ext.Max != 0 {
			t.Fatalf("min/max = %v/%v", ext.Min, ext.Max)
		}
		if ext.MinNonZero != nil || ext.MaxNonZero != nil {
			t.Fatalf("expected no non-zero extrema, got %v/%v", ext.MinNonZero, ext.MaxNonZero)
		}
	})

	t.Run("descending", func(t *testing.T) {
		ext := ComputeExtrema([]float32{9, 4, 1})
		if ext.Min != 1 || ext.Max != 9 || *ext.MinNonZero != 1 || *ext.MaxNonZero != 9 {
			t.Fatalf("unexpected extrema: %+v", ext)
		}
	})

	t.Run("empty", func(t *testing.T) {
		ext := ComputeExtrema(nil)
		if ext.Min != 0 || ext.Max != 0 || ext.MinNonZero != nil {
			t.Fatalf("unexpected extrema: %+v", ext)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		values := []float32{3, 0, 7, 1, 0, 12, 4}
		ext := ComputeExtrema(values)
		for _, v := range values {
			if v < ext.Min || v > ext.Max {
				t.Fatalf("value %v outside [%v, %v]", v, ext.Min, ext.Max)
			}
		}
	})
}
