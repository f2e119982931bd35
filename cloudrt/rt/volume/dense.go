package volume

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
)

// DenseVolume is a zero-filled box of little-endian half floats, x fastest,
// then y, then z. It is immutable once returned from Decode or BuildDense.
type DenseVolume struct {
	Min    Coord
	Extent [3]int
	Data   []byte
}

// ExtentOf returns the inclusive extent of b, or ErrMetadata when the box is
// degenerate or too large to allocate.
func ExtentOf(b AABB) ([3]int, error) {
	e := b.Extent()
	if e[0] <= 0 || e[1] <= 0 || e[2] <= 0 {
		return e, fmt.Errorf("%w: degenerate bounds %v (extent %v)", ErrMetadata, b, e)
	}
	// bound each partial product so the multiplication cannot wrap
	n := 1
	for _, k := range e {
		if k > MaxDenseVoxels/n {
			return e, fmt.Errorf("%w: bounds %v exceed %d voxels", ErrMetadata, b, MaxDenseVoxels)
		}
		n *= k
	}
	return e, nil
}

func newDense(name string, b AABB) (*DenseVolume, error) {
	e, err := ExtentOf(b)
	if err != nil {
		return nil, &DecodeError{Kind: ErrMetadata, Grid: name, Err: err}
	}
	return &DenseVolume{
		Min:    b.Min,
		Extent: e,
		Data:   make([]byte, e[0]*e[1]*e[2]*2),
	}, nil
}

// Voxels is the number of texels in the volume.
func (d *DenseVolume) Voxels() int {
	return d.Extent[0] * d.Extent[1] * d.Extent[2]
}

// BytesPerRow is the row pitch used when uploading to a texture.
func (d *DenseVolume) BytesPerRow() int {
	return d.Extent[0] * 2
}

// index maps an index-space coordinate to its byte offset in Data.
func (d *DenseVolume) index(c Coord) (int, bool) {
	x := int(c.X) - int(d.Min.X)
	y := int(c.Y) - int(d.Min.Y)
	z := int(c.Z) - int(d.Min.Z)
	if x < 0 || y < 0 || z < 0 || x >= d.Extent[0] || y >= d.Extent[1] || z >= d.Extent[2] {
		return 0, false
	}
	return 2 * (x + y*d.Extent[0] + z*d.Extent[0]*d.Extent[1]), true
}

// HalfAt returns the stored half bits at index-space coordinate c. Points
// outside the volume read as zero.
func (d *DenseVolume) HalfAt(c Coord) uint16 {
	i, ok := d.index(c)
	if !ok {
		return 0
	}
	return byteOrder.Uint16(d.Data[i:])
}

func (d *DenseVolume) At(c Coord) float32 {
	return float16.Frombits(d.HalfAt(c)).Float32()
}

// BuildDense rasterizes an in-memory grid over its bounds.
func BuildDense(g *Grid) (*DenseVolume, error) {
	d, err := newDense(g.Name, g.Bounds())
	if err != nil {
		return nil, err
	}
	var bad *DecodeError
	g.ForEach(func(c Coord, v float32) {
		if bad != nil {
			return
		}
		i, ok := d.index(c)
		if !ok {
			bad = newDecodeError(ErrCorruptGrid, g.Name, "voxel %v outside %v", c, g.Bounds())
			return
		}
		byteOrder.PutUint16(d.Data[i:], float16.Fromfloat32(v).Bits())
	})
	if bad != nil {
		return nil, bad
	}
	return d, nil
}

// DecodeGrid densifies the named grid. Leaves are inflated and scattered
// in parallel; they never overlap so the writes are disjoint.
func (r *Reader) DecodeGrid(name string) (*DenseVolume, error) {
	blk, err := r.block(name)
	if err != nil {
		return nil, err
	}
	bounds, err := blk.bounds()
	if err != nil {
		return nil, err
	}
	d, err := newDense(name, bounds)
	if err != nil {
		return nil, err
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, rl := range blk.leaves {
		eg.Go(func() error {
			raw, err := blk.inflate(rl)
			if err != nil {
				return err
			}
			return scatterLeaf(d, blk, rl, raw, bounds)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func scatterLeaf(d *DenseVolume, blk *gridBlock, rl rawLeaf, raw []byte, bounds AABB) error {
	k := 0
	var bad error
	forEachOn(rl.mask[:], func(i int) {
		if bad != nil {
			return
		}
		x, y, z := leafLocal(i)
		c := rl.origin.Add(Coord{int32(x), int32(y), int32(z)})
		off, ok := d.index(c)
		if !ok {
			bad = newDecodeError(ErrCorruptGrid, blk.name, "voxel %v outside %v", c, bounds)
			return
		}
		byteOrder.PutUint16(d.Data[off:], blk.halfAt(raw, k))
		k++
	})
	return bad
}

// Decode reads a container and densifies its first grid.
func Decode(r io.Reader) (*DenseVolume, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	names := rd.GridNames()
	if len(names) == 0 {
		return nil, newDecodeError(ErrParse, "", "container holds no grids")
	}
	return rd.DecodeGrid(names[0])
}

// DecodeFile opens path and decodes its first grid.
func DecodeFile(path string) (*DenseVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Kind: ErrIO, Err: err}
	}
	defer f.Close()
	return Decode(f)
}
