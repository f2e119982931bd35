package volume

import (
	"encoding/binary"
	"math/bits"
)

// Container layout constants. Node fan-out follows the NanoVDB leaf and
// lower-node dimensions.
const (
	Magic         = "CVDB"
	FormatVersion = 1

	LeafLog2Dim     = 3
	InternalLog2Dim = 4

	LeafDim      = 1 << LeafLog2Dim     // 8
	InternalDim  = 1 << InternalLog2Dim // 16
	LeafVoxels   = LeafDim * LeafDim * LeafDim
	InternalSpan = InternalDim * LeafDim // 128 voxels per axis

	InternalChildren = InternalDim * InternalDim * InternalDim

	// MaxDenseVoxels bounds the dense allocation (2 GiB of half floats).
	MaxDenseVoxels = 1 << 30

	MetaBBoxMin   = "file_bbox_min"
	MetaBBoxMax   = "file_bbox_max"
	MetaVoxelSize = "voxel_size"
	MetaCreator   = "creator"
)

var byteOrder = binary.LittleEndian

// ValueType is the on-disk scalar encoding of a grid.
type ValueType uint32

const (
	ValueHalf    ValueType = 1
	ValueFloat32 ValueType = 2
)

func (v ValueType) Size() int {
	switch v {
	case ValueHalf:
		return 2
	case ValueFloat32:
		return 4
	default:
		return 0
	}
}

func (v ValueType) String() string {
	switch v {
	case ValueHalf:
		return "half"
	case ValueFloat32:
		return "float"
	default:
		return "unknown"
	}
}

type GridClass uint32

const (
	ClassUnknown   GridClass = 0
	ClassFogVolume GridClass = 2
)

// Compression applied to leaf payloads.
type Compression uint32

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 1
)

// Metadata value tags.
type metaType uint8

const (
	metaVec3i  metaType = 1
	metaVec3d  metaType = 2
	metaString metaType = 3
	metaInt64  metaType = 4
)

// Mask512 holds one bit per leaf voxel.
type Mask512 [8]uint64

func (m *Mask512) Set(i int)       { m[i>>6] |= 1 << (i & 63) }
func (m *Mask512) Clear(i int)     { m[i>>6] &^= 1 << (i & 63) }
func (m *Mask512) IsOn(i int) bool { return m[i>>6]&(1<<(i&63)) != 0 }

func (m *Mask512) CountOn() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// Mask4096 holds one bit per internal-node child.
type Mask4096 [64]uint64

func (m *Mask4096) Set(i int)       { m[i>>6] |= 1 << (i & 63) }
func (m *Mask4096) IsOn(i int) bool { return m[i>>6]&(1<<(i&63)) != 0 }

func (m *Mask4096) CountOn() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// forEachOn calls fn with the index of every set bit in ascending order.
func forEachOn(words []uint64, fn func(i int)) {
	for w, word := range words {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(w<<6 | b)
			word &= word - 1
		}
	}
}

func leafOffset(x, y, z int) int {
	return x | y<<LeafLog2Dim | z<<(2*LeafLog2Dim)
}

func leafLocal(i int) (x, y, z int) {
	return i & (LeafDim - 1), (i >> LeafLog2Dim) & (LeafDim - 1), i >> (2 * LeafLog2Dim)
}

func internalOffset(x, y, z int) int {
	return x | y<<InternalLog2Dim | z<<(2*InternalLog2Dim)
}

func internalLocal(i int) (x, y, z int) {
	return i & (InternalDim - 1), (i >> InternalLog2Dim) & (InternalDim - 1), i >> (2 * InternalLog2Dim)
}

func leafOrigin(c Coord) Coord {
	const mask = ^int32(LeafDim - 1)
	return Coord{c.X & mask, c.Y & mask, c.Z & mask}
}

func internalOrigin(c Coord) Coord {
	const mask = ^int32(InternalSpan - 1)
	return Coord{c.X & mask, c.Y & mask, c.Z & mask}
}
