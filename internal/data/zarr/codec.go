package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// dtype is a parsed numpy-style type string such as "<f4".
type dtype struct {
	kind  byte // 'f', 'i' or 'u'
	size  int
	order binary.ByteOrder
}

func parseDType(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %q", s)
	}

	var order binary.ByteOrder
	switch s[0] {
	case '<', '|':
		order = binary.LittleEndian
	case '>':
		order = binary.BigEndian
	default:
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %q", s)
	}

	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %q", s)
	}

	dt := dtype{kind: s[1], size: size, order: order}
	switch {
	case dt.kind == 'f' && (size == 4 || size == 8):
	case (dt.kind == 'i' || dt.kind == 'u') && (size == 1 || size == 2 || size == 4 || size == 8):
	default:
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %q", s)
	}
	return dt, nil
}

// decode converts one element to float32. b holds exactly dt.size bytes.
func (dt dtype) decode(b []byte) float32 {
	switch dt.kind {
	case 'f':
		if dt.size == 4 {
			return math.Float32frombits(dt.order.Uint32(b))
		}
		return float32(math.Float64frombits(dt.order.Uint64(b)))
	case 'i':
		switch dt.size {
		case 1:
			return float32(int8(b[0]))
		case 2:
			return float32(int16(dt.order.Uint16(b)))
		case 4:
			return float32(int32(dt.order.Uint32(b)))
		default:
			return float32(int64(dt.order.Uint64(b)))
		}
	default:
		switch dt.size {
		case 1:
			return float32(b[0])
		case 2:
			return float32(dt.order.Uint16(b))
		case 4:
			return float32(dt.order.Uint32(b))
		default:
			return float32(dt.order.Uint64(b))
		}
	}
}

// fillValue interprets the .zarray fill_value. null means 0.
func fillValue(v interface{}) (float32, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return float32(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		switch t {
		case "NaN":
			return float32(math.NaN()), nil
		case "Infinity":
			return float32(math.Inf(1)), nil
		case "-Infinity":
			return float32(math.Inf(-1)), nil
		}
	}
	return 0, fmt.Errorf("unsupported fill_value: %v", v)
}

func (r *Reader) decompress(c *Compressor, raw []byte) ([]byte, error) {
	if c == nil || c.ID == "" {
		return raw, nil
	}

	switch c.ID {
	case "zstd":
		out, err := r.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress failed: %w", err)
		}
		return out, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress failed: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress failed: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported compressor: %s", c.ID)
	}
}
