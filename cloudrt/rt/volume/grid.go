package volume

import (
	"cmp"
	"slices"
)

// Leaf is an 8^3 block of voxels. Values of inactive voxels are ignored.
type Leaf struct {
	Origin Coord
	Mask   Mask512
	Values [LeafVoxels]float32
}

// Grid is an in-memory sparse scalar grid. It is the unit the Writer
// encodes and Reader.ReadGrid returns.
type Grid struct {
	Name      string
	Type      ValueType
	Class     GridClass
	VoxelSize [3]float64
	Creator   string

	bounds    AABB
	hasBounds bool
	leaves    map[Coord]*Leaf
}

func NewGrid(name string, vt ValueType) *Grid {
	return &Grid{
		Name:      name,
		Type:      vt,
		Class:     ClassFogVolume,
		VoxelSize: [3]float64{1, 1, 1},
		leaves:    make(map[Coord]*Leaf),
	}
}

// Set activates c with value v.
func (g *Grid) Set(c Coord, v float32) {
	o := leafOrigin(c)
	leaf, ok := g.leaves[o]
	if !ok {
		leaf = &Leaf{Origin: o}
		g.leaves[o] = leaf
	}
	i := leafOffset(int(c.X-o.X), int(c.Y-o.Y), int(c.Z-o.Z))
	leaf.Mask.Set(i)
	leaf.Values[i] = v
}

// Get returns the value at c and whether the voxel is active. Inactive
// voxels read as zero.
func (g *Grid) Get(c Coord) (float32, bool) {
	o := leafOrigin(c)
	leaf, ok := g.leaves[o]
	if !ok {
		return 0, false
	}
	i := leafOffset(int(c.X-o.X), int(c.Y-o.Y), int(c.Z-o.Z))
	if !leaf.Mask.IsOn(i) {
		return 0, false
	}
	return leaf.Values[i], true
}

func (g *Grid) ActiveVoxels() int {
	n := 0
	for _, leaf := range g.leaves {
		n += leaf.Mask.CountOn()
	}
	return n
}

func (g *Grid) LeafCount() int {
	return len(g.leaves)
}

// SetBounds overrides the bounding box recorded in the file metadata.
func (g *Grid) SetBounds(b AABB) {
	g.bounds = b
	g.hasBounds = true
}

// Bounds returns the declared bounds, or the bounds of the active voxels
// when none were set.
func (g *Grid) Bounds() AABB {
	if g.hasBounds {
		return g.bounds
	}
	return g.ComputeBBox()
}

func (g *Grid) ComputeBBox() AABB {
	box := EmptyAABB()
	g.ForEach(func(c Coord, _ float32) {
		box = box.Expand(c)
	})
	return box
}

// Leaves returns the leaves in file order: by internal node (z, y, x),
// then by child bit index.
func (g *Grid) Leaves() []*Leaf {
	out := make([]*Leaf, 0, len(g.leaves))
	for _, leaf := range g.leaves {
		out = append(out, leaf)
	}
	slices.SortFunc(out, func(a, b *Leaf) int {
		ia, ib := internalOrigin(a.Origin), internalOrigin(b.Origin)
		if c := compareZYX(ia, ib); c != 0 {
			return c
		}
		return cmp.Compare(childIndex(ia, a.Origin), childIndex(ib, b.Origin))
	})
	return out
}

// ForEach visits every active voxel in file order.
func (g *Grid) ForEach(fn func(c Coord, v float32)) {
	for _, leaf := range g.Leaves() {
		forEachOn(leaf.Mask[:], func(i int) {
			x, y, z := leafLocal(i)
			fn(leaf.Origin.Add(Coord{int32(x), int32(y), int32(z)}), leaf.Values[i])
		})
	}
}

func (g *Grid) addLeaf(leaf *Leaf) bool {
	if _, dup := g.leaves[leaf.Origin]; dup {
		return false
	}
	g.leaves[leaf.Origin] = leaf
	return true
}

func compareZYX(a, b Coord) int {
	if c := cmp.Compare(a.Z, b.Z); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

func childIndex(internal, leaf Coord) int {
	d := leaf.Sub(internal)
	return internalOffset(int(d.X)/LeafDim, int(d.Y)/LeafDim, int(d.Z)/LeafDim)
}
