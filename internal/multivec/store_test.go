package multivec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory ChunkStore holding one dense array per path.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	arrays   map[string][][]float32
	failPath map[string]bool
	gets     atomic.Int64
	slices   atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string][]byte),
		arrays:   make(map[string][][]float32),
		failPath: make(map[string]bool),
	}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return data, nil
}

func (m *memStore) ReadSlice(ctx context.Context, path string, rows, cols [2]int) ([]float32, [2]int, error) {
	m.slices.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, [2]int{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPath[path] {
		return nil, [2]int{}, errInjected
	}
	arr, ok := m.arrays[path]
	if !ok {
		return nil, [2]int{}, fmt.Errorf("no such array: %s", path)
	}
	rows[1] = min(rows[1], len(arr))
	cols[1] = min(cols[1], len(arr[0]))
	cols[0] = min(cols[0], cols[1])
	nr, nc := rows[1]-rows[0], cols[1]-cols[0]
	out := make([]float32, 0, nr*nc)
	for r := rows[0]; r < rows[1]; r++ {
		out = append(out, arr[r][cols[0]:cols[1]]...)
	}
	return out, [2]int{nr, nc}, nil
}

// testValue encodes sample, chromosome index and bin so tests can check placement.
func testValue(sample, chromIdx, bin int) float32 {
	return float32(sample*100000 + chromIdx*1000 + bin)
}

// seedTileset writes metadata and arrays for chroms at each resolution.
func (m *memStore) seedTileset(tileSize, numSamples int, resolutions []int, chroms []ChromSize) {
	total := 0
	pairs := make([]ChromSize, len(chroms))
	copy(pairs, chroms)
	for _, c := range chroms {
		total += c.Length
	}
	attrs, err := json.Marshal(map[string]interface{}{
		"tile_size":   tileSize,
		"max_pos":     []int{total},
		"resolutions": resolutions,
		"chromSizes":  pairs,
		"shape":       []int{numSamples, tileSize},
	})
	if err != nil {
		panic(err)
	}
	m.objects[DefaultMetadataKey] = attrs

	for _, res := range resolutions {
		for ci, c := range chroms {
			nBins := ceilDiv(c.Length, res)
			arr := make([][]float32, numSamples)
			for s := range arr {
				arr[s] = make([]float32, nBins)
				for b := range arr[s] {
					arr[s][b] = testValue(s, ci, b)
				}
			}
			m.arrays[ChunkPath(c.Name, res)] = arr
		}
	}
}
