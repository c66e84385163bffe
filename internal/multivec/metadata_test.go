package multivec

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const validAttrs = `{
  "tile_size": 256,
  "max_pos": [3000],
  "resolutions": [1, 4, 16],
  "chromSizes": [["chr1", 2000], ["chr2", 1000]],
  "shape": [3, 256]
}`

func TestParseTilesetInfo_Derived(t *testing.T) {
	info, err := ParseTilesetInfo([]byte(validAttrs))
	if err != nil {
		t.Fatalf("ParseTilesetInfo error: %v", err)
	}

	// ceil(log2(3000/256)) = ceil(3.55) = 4
	if info.MaxZoom != 4 {
		t.Errorf("MaxZoom = %d, want 4", info.MaxZoom)
	}
	if info.MaxWidth != 256<<4 {
		t.Errorf("MaxWidth = %d, want %d", info.MaxWidth, 256<<4)
	}
	if len(info.MinPos) != 1 || info.MinPos[0] != 0 {
		t.Errorf("MinPos = %v", info.MinPos)
	}
	if got := info.Resolutions; got[0] != 16 || got[1] != 4 || got[2] != 1 {
		t.Errorf("Resolutions not ordered coarsest first: %v", got)
	}
	if info.NumSamples() != 3 {
		t.Errorf("NumSamples = %d", info.NumSamples())
	}
	if info.Genome().TotalLength() != 3000 {
		t.Errorf("genome length = %d", info.Genome().TotalLength())
	}
	if info.ChromSizes[1] != (ChromSize{"chr2", 1000}) {
		t.Errorf("ChromSizes[1] = %+v", info.ChromSizes[1])
	}
}

func TestParseTilesetInfo_ExplicitFieldsKept(t *testing.T) {
	doc := `{"tile_size": 1024, "max_pos": [3.1e9], "max_zoom": 22, "max_width": 4294967296,
	  "resolutions": [1000], "chromSizes": [["chr1", 3100000000]], "shape": [1, 1024]}`
	info, err := ParseTilesetInfo([]byte(doc))
	if err != nil {
		t.Fatalf("ParseTilesetInfo error: %v", err)
	}
	if info.MaxZoom != 22 || info.MaxWidth != 4294967296 {
		t.Fatalf("explicit fields overwritten: zoom=%d width=%d", info.MaxZoom, info.MaxWidth)
	}
	if info.MaxPos[0] != 3100000000 {
		t.Fatalf("MaxPos = %v", info.MaxPos)
	}
}

func TestParseTilesetInfo_Invalid(t *testing.T) {
	cases := map[string]string{
		"notJSON":         `{"tile_size":`,
		"missingTileSize": strings.Replace(validAttrs, `"tile_size": 256,`, ``, 1),
		"missingMaxPos":   strings.Replace(validAttrs, `"max_pos": [3000],`, ``, 1),
		"nonNumeric":      strings.Replace(validAttrs, `"tile_size": 256`, `"tile_size": "big"`, 1),
		"badChromEntry":   strings.Replace(validAttrs, `["chr2", 1000]`, `["chr2"]`, 1),
		"duplicateChrom":  strings.Replace(validAttrs, `["chr2", 1000]`, `["chr1", 1000]`, 1),
		"shortShape":      strings.Replace(validAttrs, `"shape": [3, 256]`, `"shape": [3]`, 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTilesetInfo([]byte(doc))
			if !errors.Is(err, ErrMetadataParse) {
				t.Fatalf("expected ErrMetadataParse, got %v", err)
			}
		})
	}
}

func TestChromSize_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal([]ChromSize{{"chrX", 42}})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `[["chrX",42]]` {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestMetadataResolver_Memoizes(t *testing.T) {
	s := newMemStore()
	s.objects[DefaultMetadataKey] = []byte(validAttrs)
	r := NewMetadataResolver(s, "", nil)

	first, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	second, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if first != second {
		t.Fatal("expected the memoized value to be returned")
	}
	if n := s.gets.Load(); n != 1 {
		t.Fatalf("expected 1 store read, got %d", n)
	}

	r.Reset()
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve after Reset error: %v", err)
	}
	if n := s.gets.Load(); n != 2 {
		t.Fatalf("expected 2 store reads after Reset, got %d", n)
	}
}

func TestMetadataResolver_Errors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		s := newMemStore()
		r := NewMetadataResolver(s, "", nil)
		if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrMetadataFetch) {
			t.Fatalf("expected ErrMetadataFetch, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		s := newMemStore()
		s.objects[DefaultMetadataKey] = []byte{}
		r := NewMetadataResolver(s, "", nil)
		if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrMetadataFetch) {
			t.Fatalf("expected ErrMetadataFetch, got %v", err)
		}
	})

	t.Run("parse", func(t *testing.T) {
		s := newMemStore()
		s.objects[DefaultMetadataKey] = []byte(`{"tile_size": 256}`)
		r := NewMetadataResolver(s, "", nil)
		if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrMetadataParse) {
			t.Fatalf("expected ErrMetadataParse, got %v", err)
		}
	})

	t.Run("failureNotCached", func(t *testing.T) {
		s := newMemStore()
		r := NewMetadataResolver(s, "", nil)
		if _, err := r.Resolve(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		s.objects[DefaultMetadataKey] = []byte(validAttrs)
		if _, err := r.Resolve(context.Background()); err != nil {
			t.Fatalf("expected recovery after store fixed, got %v", err)
		}
	})
}

// gatedStore blocks metadata reads until release is closed.
type gatedStore struct {
	*memStore
	started     chan struct{}
	startedOnce sync.Once
	release     chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memStore: newMemStore(),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, error) {
	g.memStore.mu.Lock()
	data := g.memStore.objects[key]
	g.memStore.mu.Unlock()

	g.startedOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.gets.Add(1)
	return data, nil
}

func TestMetadataResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	s := newGatedStore()
	s.objects[DefaultMetadataKey] = []byte(validAttrs)
	r := NewMetadataResolver(s, "", nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctxA)
		errA <- err
	}()
	<-s.started

	type result struct {
		info *TilesetInfo
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		info, err := r.Resolve(context.Background())
		resB <- result{info, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(s.release)
	select {
	case res := <-resB:
		if res.err != nil {
			t.Fatalf("uncancelled caller failed: %v", res.err)
		}
		if res.info.TileSize != 256 {
			t.Fatalf("unexpected info: %+v", res.info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("uncancelled caller did not return")
	}
	if n := s.gets.Load(); n != 1 {
		t.Fatalf("expected 1 store read, got %d", n)
	}
}

func TestMetadataResolver_ResetDuringLoad(t *testing.T) {
	s := newGatedStore()
	s.objects[DefaultMetadataKey] = []byte(validAttrs)
	r := NewMetadataResolver(s, "", nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background())
		done <- err
	}()
	<-s.started

	r.Reset()
	s.memStore.mu.Lock()
	s.objects[DefaultMetadataKey] = []byte(strings.Replace(validAttrs, `"tile_size": 256`, `"tile_size": 512`, 1))
	s.memStore.mu.Unlock()
	close(s.release)

	if err := <-done; err != nil {
		t.Fatalf("in-flight Resolve error: %v", err)
	}

	info, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve after Reset error: %v", err)
	}
	if info.TileSize != 512 {
		t.Fatalf("stale metadata survived Reset: tile_size %d", info.TileSize)
	}
}
