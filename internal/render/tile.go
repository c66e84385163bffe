// Package render provides heatmap previews of multivec tiles using fogleman/gg.
package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/multivec-tiles/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	// Width is the image width in pixels of a full tile.
	Width           int
	RowHeight       int
	DefaultColormap string
}

// TileRenderer renders tiles as sample × bin heatmaps.
type TileRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 256
	}
	if cfg.RowHeight <= 0 {
		cfg.RowHeight = 4
	}
	if _, ok := colormap.Lookup(cfg.DefaultColormap); !ok {
		cfg.DefaultColormap = "viridis"
	}
	return &TileRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// context returns a pooled drawing context of the requested size.
func (r *TileRenderer) context(w, h int) *gg.Context {
	if dc, ok := r.contextPool.Get().(*gg.Context); ok && dc.Width() == w && dc.Height() == h {
		return dc
	}
	return gg.NewContext(w, h)
}

// RenderTile draws one row per sample and one column per bin. tileSize is
// the number of bins in a full tile; a shorter final tile leaves the right
// edge blank. Values are scaled linearly between the tile's min and max and
// NaN bins stay transparent.
func (r *TileRenderer) RenderTile(tile *multivec.Tile, tileSize int, colormapName string) ([]byte, error) {
	rows, bins := tile.Shape[0], tile.Shape[1]
	if rows == 0 {
		return r.CreateEmptyTile(r.config.RowHeight)
	}

	height := rows * r.config.RowHeight
	dc := r.context(r.config.Width, height)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.Transparent)
	dc.Clear()

	cmap, ok := colormap.Lookup(colormapName)
	if !ok {
		cmap, _ = colormap.Lookup(r.config.DefaultColormap)
	}

	if tileSize < bins {
		tileSize = bins
	}
	if tileSize <= 0 {
		return r.encodeContext(dc)
	}
	binWidth := float64(r.config.Width) / float64(tileSize)
	rowHeight := float64(r.config.RowHeight)

	lo := float64(tile.Extrema.Min)
	span := float64(tile.Extrema.Max) - lo
	if span == 0 {
		span = 1
	}

	for s := 0; s < rows; s++ {
		row := tile.Dense[s*bins : (s+1)*bins]
		for b, v := range row {
			if math.IsNaN(float64(v)) {
				continue
			}
			dc.SetColor(cmap.At((float64(v) - lo) / span))
			// Fill the entire bin area.
			dc.DrawRectangle(float64(b)*binWidth, float64(s)*rowHeight, binWidth, rowHeight)
			dc.Fill()
		}
	}

	return r.encodeContext(dc)
}

func (r *TileRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptyTile creates an empty transparent tile of the given height.
func (r *TileRenderer) CreateEmptyTile(height int) ([]byte, error) {
	if height <= 0 {
		height = r.config.RowHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, height))
	// Fill with transparent white
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255   // R
		img.Pix[i+1] = 255 // G
		img.Pix[i+2] = 255 // B
		img.Pix[i+3] = 0   // A (transparent)
	}

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
