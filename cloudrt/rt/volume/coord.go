package volume

import "fmt"

// Coord is an integer voxel coordinate in index space.
type Coord struct {
	X, Y, Z int32
}

func (c Coord) Add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

func (c Coord) Sub(o Coord) Coord {
	return Coord{c.X - o.X, c.Y - o.Y, c.Z - o.Z}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// AABB is an integer bounding box. Both Min and Max are inclusive.
type AABB struct {
	Min, Max Coord
}

// Extent returns the number of voxels covered on each axis (Max - Min + 1).
// A component is <= 0 when the box is inverted on that axis.
func (b AABB) Extent() [3]int {
	return [3]int{
		int(b.Max.X) - int(b.Min.X) + 1,
		int(b.Max.Y) - int(b.Min.Y) + 1,
		int(b.Max.Z) - int(b.Min.Z) + 1,
	}
}

// Empty reports whether any axis has a non-positive extent.
func (b AABB) Empty() bool {
	e := b.Extent()
	return e[0] <= 0 || e[1] <= 0 || e[2] <= 0
}

func (b AABB) Contains(c Coord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X &&
		c.Y >= b.Min.Y && c.Y <= b.Max.Y &&
		c.Z >= b.Min.Z && c.Z <= b.Max.Z
}

// Expand grows the box to include c. An empty box becomes the single voxel c.
func (b AABB) Expand(c Coord) AABB {
	if b.Empty() {
		return AABB{Min: c, Max: c}
	}
	b.Min = Coord{min(b.Min.X, c.X), min(b.Min.Y, c.Y), min(b.Min.Z, c.Z)}
	b.Max = Coord{max(b.Max.X, c.X), max(b.Max.Y, c.Y), max(b.Max.Z, c.Z)}
	return b
}

// EmptyAABB returns an inverted box that Expand turns into a real one.
func EmptyAABB() AABB {
	return AABB{Min: Coord{1, 1, 1}, Max: Coord{0, 0, 0}}
}

func (b AABB) String() string {
	return fmt.Sprintf("[%v .. %v]", b.Min, b.Max)
}
