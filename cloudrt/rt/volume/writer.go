package volume

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/x448/float16"
)

// Writer encodes grids into a .cvdb container.
type Writer struct {
	w           io.Writer
	compression Compression
	level       int
}

type WriterOption func(*Writer)

// WithZlib compresses leaf payloads at the given zlib level.
func WithZlib(level int) WriterOption {
	return func(w *Writer) {
		w.compression = CompressionZlib
		w.level = level
	}
}

func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{w: w, compression: CompressionNone, level: zlib.DefaultCompression}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Write emits the header, the grid table and one block per grid.
func (w *Writer) Write(grids ...*Grid) error {
	if len(grids) == 0 {
		return fmt.Errorf("volume: no grids to write")
	}
	seen := make(map[string]bool, len(grids))
	blocks := make([][]byte, len(grids))
	headerSize := 12
	for i, g := range grids {
		if len(g.Name) > math.MaxUint16 {
			return fmt.Errorf("volume: grid name too long (%d bytes)", len(g.Name))
		}
		if seen[g.Name] {
			return fmt.Errorf("volume: duplicate grid name %q", g.Name)
		}
		seen[g.Name] = true
		if g.Type.Size() == 0 {
			return fmt.Errorf("volume: grid %q has unsupported value type %d", g.Name, g.Type)
		}
		block, err := w.encodeGrid(g)
		if err != nil {
			return fmt.Errorf("volume: encode grid %q: %w", g.Name, err)
		}
		blocks[i] = block
		headerSize += 2 + len(g.Name) + 16
	}

	var enc encoder
	enc.bytes([]byte(Magic))
	enc.u32(FormatVersion)
	enc.u32(uint32(len(grids)))
	offset := uint64(headerSize)
	for i, g := range grids {
		enc.str(g.Name)
		enc.u64(offset)
		enc.u64(uint64(len(blocks[i])))
		offset += uint64(len(blocks[i]))
	}
	if _, err := w.w.Write(enc.buf); err != nil {
		return err
	}
	for _, block := range blocks {
		if _, err := w.w.Write(block); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) encodeGrid(g *Grid) ([]byte, error) {
	var enc encoder
	enc.u32(uint32(g.Type))
	enc.u32(uint32(g.Class))
	enc.u32(uint32(w.compression))
	for _, s := range g.VoxelSize {
		enc.f64(s)
	}

	bounds := g.Bounds()
	metaCount := 4
	if g.Creator != "" {
		metaCount++
	}
	enc.u32(uint32(metaCount))
	enc.metaVec3i(MetaBBoxMin, bounds.Min)
	enc.metaVec3i(MetaBBoxMax, bounds.Max)
	enc.metaVec3d(MetaVoxelSize, g.VoxelSize)
	enc.metaInt64("active_voxel_count", int64(g.ActiveVoxels()))
	if g.Creator != "" {
		enc.metaString(MetaCreator, g.Creator)
	}

	// Group leaves under their internal nodes; Leaves() is already sorted
	// by internal origin so each group is contiguous.
	leaves := g.Leaves()
	type internal struct {
		origin Coord
		mask   Mask4096
		leaves []*Leaf
	}
	var internals []*internal
	for _, leaf := range leaves {
		o := internalOrigin(leaf.Origin)
		if len(internals) == 0 || internals[len(internals)-1].origin != o {
			internals = append(internals, &internal{origin: o})
		}
		node := internals[len(internals)-1]
		node.mask.Set(childIndex(o, leaf.Origin))
		node.leaves = append(node.leaves, leaf)
	}

	enc.u32(uint32(len(internals)))
	for _, node := range internals {
		enc.coord(node.origin)
		for _, word := range node.mask {
			enc.u64(word)
		}
		for _, leaf := range node.leaves {
			payload, err := w.leafPayload(g.Type, leaf)
			if err != nil {
				return nil, err
			}
			enc.coord(leaf.Origin)
			for _, word := range leaf.Mask {
				enc.u64(word)
			}
			enc.u32(uint32(len(payload)))
			enc.bytes(payload)
		}
	}
	return enc.buf, nil
}

func (w *Writer) leafPayload(vt ValueType, leaf *Leaf) ([]byte, error) {
	raw := make([]byte, 0, leaf.Mask.CountOn()*vt.Size())
	forEachOn(leaf.Mask[:], func(i int) {
		v := leaf.Values[i]
		if vt == ValueHalf {
			raw = byteOrder.AppendUint16(raw, float16.Fromfloat32(v).Bits())
		} else {
			raw = byteOrder.AppendUint32(raw, math.Float32bits(v))
		}
	})
	if w.compression != CompressionZlib {
		return raw, nil
	}
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, w.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }
func (e *encoder) u8(v uint8)     { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16)   { e.buf = byteOrder.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32)   { e.buf = byteOrder.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64)   { e.buf = byteOrder.AppendUint64(e.buf, v) }
func (e *encoder) f64(v float64)  { e.u64(math.Float64bits(v)) }

func (e *encoder) str(s string) {
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) coord(c Coord) {
	e.u32(uint32(c.X))
	e.u32(uint32(c.Y))
	e.u32(uint32(c.Z))
}

func (e *encoder) metaVec3i(key string, c Coord) {
	e.str(key)
	e.u8(uint8(metaVec3i))
	e.coord(c)
}

func (e *encoder) metaVec3d(key string, v [3]float64) {
	e.str(key)
	e.u8(uint8(metaVec3d))
	for _, f := range v {
		e.f64(f)
	}
}

func (e *encoder) metaString(key, v string) {
	e.str(key)
	e.u8(uint8(metaString))
	e.str(v)
}

func (e *encoder) metaInt64(key string, v int64) {
	e.str(key)
	e.u8(uint8(metaInt64))
	e.u64(uint64(v))
}
