package volume

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/x448/float16"
)

type tableEntry struct {
	name   string
	offset uint64
	size   uint64
}

// Reader gives random access to the grids of a .cvdb container held in
// memory.
type Reader struct {
	data  []byte
	table []tableEntry
}

// NewReader consumes r fully and parses the container header.
func NewReader(r io.Reader) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Kind: ErrIO, Err: err}
	}
	return newReaderBytes(data)
}

func newReaderBytes(data []byte) (*Reader, error) {
	c := &cursor{data: data}
	magic := c.take(len(Magic))
	if c.err != nil || string(magic) != Magic {
		return nil, newDecodeError(ErrParse, "", "bad magic %q", magic)
	}
	if v := c.u32(); v != FormatVersion {
		return nil, newDecodeError(ErrParse, "", "unsupported version %d", v)
	}
	n := c.u32()
	if c.err != nil {
		return nil, &DecodeError{Kind: ErrParse, Err: c.err}
	}
	rd := &Reader{data: data}
	seen := make(map[string]bool)
	for i := uint32(0); i < n; i++ {
		e := tableEntry{name: c.str(), offset: c.u64(), size: c.u64()}
		if c.err != nil {
			return nil, newDecodeError(ErrParse, "", "grid table entry %d: %v", i, c.err)
		}
		if e.offset > uint64(len(data)) || e.size > uint64(len(data))-e.offset {
			return nil, newDecodeError(ErrParse, e.name, "block [%d, +%d) exceeds file size %d", e.offset, e.size, len(data))
		}
		if seen[e.name] {
			return nil, newDecodeError(ErrParse, e.name, "duplicate grid name")
		}
		seen[e.name] = true
		rd.table = append(rd.table, e)
	}
	return rd, nil
}

// GridNames returns the grid names in file order.
func (r *Reader) GridNames() []string {
	names := make([]string, len(r.table))
	for i, e := range r.table {
		names[i] = e.name
	}
	return names
}

// ReadGrid decodes the named grid into sparse form. Declared bounds are
// kept when present; missing bounds are not an error here.
func (r *Reader) ReadGrid(name string) (*Grid, error) {
	blk, err := r.block(name)
	if err != nil {
		return nil, err
	}
	g := NewGrid(name, blk.valueType)
	g.Class = blk.class
	g.VoxelSize = blk.voxelSize
	if s, ok := blk.meta[MetaCreator].(string); ok {
		g.Creator = s
	}
	if b, err := blk.bounds(); err == nil {
		g.SetBounds(b)
	}
	for _, rl := range blk.leaves {
		raw, err := blk.inflate(rl)
		if err != nil {
			return nil, err
		}
		leaf := &Leaf{Origin: rl.origin, Mask: rl.mask}
		k := 0
		forEachOn(rl.mask[:], func(i int) {
			leaf.Values[i] = blk.valueAt(raw, k)
			k++
		})
		if !g.addLeaf(leaf) {
			return nil, newDecodeError(ErrParse, name, "duplicate leaf at %v", rl.origin)
		}
	}
	return g, nil
}

func (r *Reader) block(name string) (*gridBlock, error) {
	for _, e := range r.table {
		if e.name == name {
			return parseGridBlock(name, r.data[e.offset:e.offset+e.size])
		}
	}
	return nil, newDecodeError(ErrParse, name, "no such grid")
}

type rawLeaf struct {
	origin  Coord
	mask    Mask512
	payload []byte
}

type gridBlock struct {
	name        string
	valueType   ValueType
	class       GridClass
	compression Compression
	voxelSize   [3]float64
	meta        map[string]any
	leaves      []rawLeaf
}

func parseGridBlock(name string, data []byte) (*gridBlock, error) {
	c := &cursor{data: data}
	blk := &gridBlock{
		name:        name,
		valueType:   ValueType(c.u32()),
		class:       GridClass(c.u32()),
		compression: Compression(c.u32()),
		meta:        make(map[string]any),
	}
	for i := range blk.voxelSize {
		blk.voxelSize[i] = c.f64()
	}
	if c.err != nil {
		return nil, &DecodeError{Kind: ErrParse, Grid: name, Err: c.err}
	}
	if blk.valueType.Size() == 0 {
		return nil, newDecodeError(ErrParse, name, "unsupported value type %d", blk.valueType)
	}
	if blk.compression != CompressionNone && blk.compression != CompressionZlib {
		return nil, newDecodeError(ErrParse, name, "unsupported compression %d", blk.compression)
	}

	metaCount := c.u32()
	for i := uint32(0); i < metaCount && c.err == nil; i++ {
		key := c.str()
		switch metaType(c.u8()) {
		case metaVec3i:
			blk.meta[key] = c.coord()
		case metaVec3d:
			blk.meta[key] = [3]float64{c.f64(), c.f64(), c.f64()}
		case metaString:
			blk.meta[key] = c.str()
		case metaInt64:
			blk.meta[key] = int64(c.u64())
		default:
			if c.err == nil {
				return nil, newDecodeError(ErrParse, name, "metadata %q has unknown type", key)
			}
		}
	}

	internalCount := c.u32()
	seen := make(map[Coord]bool)
	for i := uint32(0); i < internalCount && c.err == nil; i++ {
		origin := c.coord()
		var mask Mask4096
		for w := range mask {
			mask[w] = c.u64()
		}
		if c.err != nil {
			break
		}
		if internalOrigin(origin) != origin {
			return nil, newDecodeError(ErrParse, name, "internal origin %v not aligned to %d", origin, InternalSpan)
		}
		if seen[origin] {
			return nil, newDecodeError(ErrParse, name, "duplicate internal node at %v", origin)
		}
		seen[origin] = true

		var perr error
		forEachOn(mask[:], func(child int) {
			if perr != nil || c.err != nil {
				return
			}
			x, y, z := internalLocal(child)
			want := origin.Add(Coord{int32(x * LeafDim), int32(y * LeafDim), int32(z * LeafDim)})
			rl := rawLeaf{origin: c.coord()}
			for w := range rl.mask {
				rl.mask[w] = c.u64()
			}
			n := c.u32()
			rl.payload = c.take(int(n))
			if c.err == nil && rl.origin != want {
				perr = newDecodeError(ErrParse, name, "leaf origin %v, expected %v", rl.origin, want)
				return
			}
			blk.leaves = append(blk.leaves, rl)
		})
		if perr != nil {
			return nil, perr
		}
	}
	if c.err != nil {
		return nil, &DecodeError{Kind: ErrParse, Grid: name, Err: c.err}
	}
	return blk, nil
}

// bounds reads the declared index-space bounding box from metadata.
func (b *gridBlock) bounds() (AABB, error) {
	lo, okMin := b.meta[MetaBBoxMin].(Coord)
	hi, okMax := b.meta[MetaBBoxMax].(Coord)
	if !okMin || !okMax {
		return AABB{}, newDecodeError(ErrMetadata, b.name, "%s/%s missing or not vec3i", MetaBBoxMin, MetaBBoxMax)
	}
	return AABB{Min: lo, Max: hi}, nil
}

// inflate returns the raw active values of a leaf, decompressing when
// needed, and checks the size against the value mask.
func (b *gridBlock) inflate(rl rawLeaf) ([]byte, error) {
	want := rl.mask.CountOn() * b.valueType.Size()
	raw := rl.payload
	if b.compression == CompressionZlib {
		zr, err := zlib.NewReader(bytes.NewReader(rl.payload))
		if err != nil {
			return nil, newDecodeError(ErrParse, b.name, "leaf %v: %v", rl.origin, err)
		}
		raw, err = io.ReadAll(io.LimitReader(zr, int64(want)+1))
		zr.Close()
		if err != nil {
			return nil, newDecodeError(ErrParse, b.name, "leaf %v: %v", rl.origin, err)
		}
	}
	if len(raw) != want {
		return nil, newDecodeError(ErrParse, b.name, "leaf %v: payload is %d bytes, mask needs %d", rl.origin, len(raw), want)
	}
	return raw, nil
}

func (b *gridBlock) valueAt(raw []byte, k int) float32 {
	if b.valueType == ValueHalf {
		return float16.Frombits(byteOrder.Uint16(raw[2*k:])).Float32()
	}
	return math.Float32frombits(byteOrder.Uint32(raw[4*k:]))
}

// halfAt returns the half-float bits of the k-th active value. Half grids
// are copied bit-exact.
func (b *gridBlock) halfAt(raw []byte, k int) uint16 {
	if b.valueType == ValueHalf {
		return byteOrder.Uint16(raw[2*k:])
	}
	return float16.Fromfloat32(math.Float32frombits(byteOrder.Uint32(raw[4*k:]))).Bits()
}

// cursor is a little-endian reader over a byte slice. The first short read
// sets err and later reads return zero values.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > len(c.data)-c.pos {
		c.err = fmt.Errorf("unexpected end of data at offset %d (need %d bytes)", c.pos, n)
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *cursor) u8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return byteOrder.Uint16(b)
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return byteOrder.Uint32(b)
	}
	return 0
}

func (c *cursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return byteOrder.Uint64(b)
	}
	return 0
}

func (c *cursor) f64() float64 { return math.Float64frombits(c.u64()) }

func (c *cursor) str() string {
	n := c.u16()
	return string(c.take(int(n)))
}

func (c *cursor) coord() Coord {
	return Coord{int32(c.u32()), int32(c.u32()), int32(c.u32())}
}
