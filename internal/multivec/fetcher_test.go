package multivec

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// Three 100bp chromosomes, two samples, tile size 256.
// max_pos 300 gives max_zoom 1 and max_width 512; resolutions [2, 1] by zoom.
func newTestFetcher(t *testing.T) (*Fetcher, *memStore) {
	t.Helper()
	s := newMemStore()
	s.seedTileset(256, 2, []int{1, 2}, []ChromSize{{"chrA", 100}, {"chrB", 100}, {"chrC", 100}})
	return NewFetcher(s, Options{}), s
}

func TestParseTileID(t *testing.T) {
	cases := []struct {
		id           string
		zoom, column int
		ok           bool
	}{
		{"0.3", 0, 3, true},
		{"12.4095", 12, 4095, true},
		{"2.1.extra", 2, 1, true},
		{"abc.2", 0, 0, false},
		{"2.x", 0, 0, false},
		{"3", 0, 0, false},
		{"", 0, 0, false},
		{"-1.2", 0, 0, false},
		{"1.-2", 0, 0, false},
	}
	for _, tc := range cases {
		zoom, column, ok := ParseTileID(tc.id)
		if ok != tc.ok || zoom != tc.zoom || column != tc.column {
			t.Errorf("ParseTileID(%q) = (%d, %d, %v), want (%d, %d, %v)", tc.id, zoom, column, ok, tc.zoom, tc.column, tc.ok)
		}
	}
	if TileID(5, 9) != "5.9" {
		t.Errorf("TileID(5, 9) = %q", TileID(5, 9))
	}
}

func TestFetcher_Plan(t *testing.T) {
	f, _ := newTestFetcher(t)
	ctx := context.Background()

	plan, err := f.Plan(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Plan(0, 0) error: %v", err)
	}
	if plan.Start != 0 || plan.End != 300 || plan.BinSize != 2 {
		t.Fatalf("unexpected plan geometry: %+v", plan)
	}
	if len(plan.Descriptors) != 3 {
		t.Fatalf("expected 3 descriptors, got %+v", plan.Descriptors)
	}
	for _, d := range plan.Descriptors {
		if d.BinStart != 0 || d.BinEnd != 50 {
			t.Fatalf("unexpected descriptor %+v", d)
		}
	}

	plan, err = f.Plan(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Plan(1, 1) error: %v", err)
	}
	if plan.From != (GenomicPosition{"chrC", 56}) || plan.To != (GenomicPosition{"chrC", 100}) {
		t.Fatalf("unexpected plan range: %+v -> %+v", plan.From, plan.To)
	}

	for _, tc := range [][2]int{{2, 0}, {-1, 0}, {0, 1}, {1, 2}} {
		if _, err := f.Plan(ctx, tc[0], tc[1]); !errors.Is(err, ErrCoordinateOutOfRange) {
			t.Errorf("Plan(%d, %d): expected ErrCoordinateOutOfRange, got %v", tc[0], tc[1], err)
		}
	}
}

func TestFetcher_Tile_SpansChromosomes(t *testing.T) {
	f, _ := newTestFetcher(t)

	tile, err := f.Tile(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Tile(1, 0) error: %v", err)
	}
	// chrA[0:100] + chrB[0:100] + chrC[0:56] at 1bp bins
	if tile.Shape != [2]int{2, 256} {
		t.Fatalf("shape = %v", tile.Shape)
	}
	if len(tile.Dense) != 2*256 {
		t.Fatalf("dense length = %d", len(tile.Dense))
	}
	for s := 0; s < 2; s++ {
		row := tile.Dense[s*256 : (s+1)*256]
		checks := map[int]float32{
			0:   testValue(s, 0, 0),
			99:  testValue(s, 0, 99),
			100: testValue(s, 1, 0),
			199: testValue(s, 1, 99),
			200: testValue(s, 2, 0),
			255: testValue(s, 2, 55),
		}
		for i, want := range checks {
			if row[i] != want {
				t.Fatalf("sample %d bin %d = %v, want %v", s, i, row[i], want)
			}
		}
	}
	if tile.Extrema.Min != 0 || tile.Extrema.Max != testValue(1, 2, 55) {
		t.Fatalf("unexpected extrema: %+v", tile.Extrema)
	}
	if tile.Extrema.MinNonZero == nil || *tile.Extrema.MinNonZero != 1 {
		t.Fatalf("unexpected MinNonZero: %v", tile.Extrema.MinNonZero)
	}
}

func TestFetcher_Tile_PartialFinalBin(t *testing.T) {
	s := newMemStore()
	// 1000bp at 300bp bins -> 4 bins, the last one partial.
	s.seedTileset(4, 1, []int{300}, []ChromSize{{"chr1", 1000}})
	f := NewFetcher(s, Options{})

	tile, err := f.Tile(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Tile error: %v", err)
	}
	if tile.Shape != [2]int{1, 4} {
		t.Fatalf("shape = %v, want [1 4]", tile.Shape)
	}
}

func TestFetcher_FetchTiles_DropsMalformed(t *testing.T) {
	f, _ := newTestFetcher(t)

	results := f.FetchTiles(context.Background(), []string{"abc.2", "0.3"})
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d: %v", len(results), results)
	}
	if _, ok := results["0.3"]; !ok {
		t.Fatalf("expected key 0.3 in results: %v", results)
	}
	if _, ok := results["abc.2"]; ok {
		t.Fatal("malformed identifier must not appear in results")
	}
}

func TestFetcher_FetchTiles_IsolatesChunkFailure(t *testing.T) {
	f, s := newTestFetcher(t)
	s.failPath[ChunkPath("chrB", 2)] = true

	results := f.FetchTiles(context.Background(), []string{"0.0", "1.0", "1.1", "1.0"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	failed := results["0.0"]
	if failed.Err == nil || failed.Tile != nil {
		t.Fatalf("expected tile 0.0 to fail, got %+v", failed)
	}
	if !errors.Is(failed.Err, ErrChunkFetch) {
		t.Fatalf("expected ErrChunkFetch, got %v", failed.Err)
	}
	var cfe *ChunkFetchError
	if !errors.As(failed.Err, &cfe) {
		t.Fatalf("expected *ChunkFetchError, got %T", failed.Err)
	}
	if cfe.Descriptor.Chrom != "chrB" {
		t.Fatalf("failing descriptor = %+v", cfe.Descriptor)
	}
	if !errors.Is(failed.Err, errInjected) {
		t.Fatalf("expected cause to be preserved, got %v", failed.Err)
	}

	for _, id := range []string{"1.0", "1.1"} {
		r := results[id]
		if r.Err != nil || r.Tile == nil {
			t.Fatalf("tile %s should succeed, got %+v", id, r)
		}
		if r.Tile.ID != id {
			t.Fatalf("tile %s has ID %q", id, r.Tile.ID)
		}
	}
	if w := results["1.1"].Tile.Shape[1]; w != 44 {
		t.Fatalf("tile 1.1 width = %d, want 44", w)
	}
}

type slowStore struct {
	*memStore
	block string
}

func (s *slowStore) ReadSlice(ctx context.Context, path string, rows, cols [2]int) ([]float32, [2]int, error) {
	if path == s.block {
		<-ctx.Done()
		return nil, [2]int{}, ctx.Err()
	}
	return s.memStore.ReadSlice(ctx, path, rows, cols)
}

func TestFetcher_FetchTiles_TimeoutIsPerTile(t *testing.T) {
	base := newMemStore()
	base.seedTileset(256, 2, []int{1, 2}, []ChromSize{{"chrA", 100}, {"chrB", 100}, {"chrC", 100}})
	s := &slowStore{memStore: base, block: ChunkPath("chrA", 2)}
	f := NewFetcher(s, Options{TileTimeout: 50 * time.Millisecond})

	results := f.FetchTiles(context.Background(), []string{"0.0", "1.1"})
	if err := results["0.0"].Err; !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrChunkFetch) {
		t.Fatalf("expected deadline chunk error for 0.0, got %v", err)
	}
	if results["1.1"].Err != nil {
		t.Fatalf("tile 1.1 should succeed, got %v", results["1.1"].Err)
	}
}

func TestFetcher_TilesetInfoResult(t *testing.T) {
	f, _ := newTestFetcher(t)
	res := f.TilesetInfoResult(context.Background())
	if res.Error != "" || res.Info == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(data), `"max_zoom":1`) || !strings.Contains(string(data), `"max_width":512`) {
		t.Fatalf("unexpected encoding: %s", data)
	}

	broken := NewFetcher(newMemStore(), Options{})
	res = broken.TilesetInfoResult(context.Background())
	if res.Error == "" {
		t.Fatal("expected error message")
	}
	data, err = json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !strings.HasPrefix(payload["error"], "Error parsing zarr multivec") {
		t.Fatalf("unexpected error payload: %s", data)
	}
}
