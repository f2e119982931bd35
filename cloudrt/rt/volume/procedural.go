package volume

import (
	"math"
)

// CloudParams shapes GenerateCloud.
type CloudParams struct {
	Size      int // voxels per axis
	Seed      uint32
	Octaves   int
	Frequency float64 // base noise frequency in cycles per volume
	Coverage  float64 // density threshold; higher gives sparser clouds
	Type      ValueType
}

func DefaultCloudParams(size int, seed uint32) CloudParams {
	return CloudParams{
		Size:      size,
		Seed:      seed,
		Octaves:   5,
		Frequency: 4,
		Coverage:  0.35,
		Type:      ValueHalf,
	}
}

// GenerateCloud builds a fog volume from fractal value noise shaped by a
// spherical falloff. Only voxels above the coverage threshold are active;
// the declared bounds span the full cube.
func GenerateCloud(p CloudParams) *Grid {
	g := NewGrid("density", p.Type)
	g.Creator = "cloudfx procedural"
	n := p.Size
	if n <= 0 {
		return g
	}
	g.SetBounds(AABB{Max: Coord{int32(n - 1), int32(n - 1), int32(n - 1)}})
	g.VoxelSize = [3]float64{1 / float64(n), 1 / float64(n), 1 / float64(n)}

	half := float64(n-1) / 2
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dx, dy, dz := (float64(x)-half)/half, (float64(y)-half)/half, (float64(z)-half)/half
				// squash vertically so the cloud is wider than tall
				r := math.Sqrt(dx*dx + dy*dy*2.2 + dz*dz)
				if r >= 1 {
					continue
				}
				u := float64(x) / float64(n)
				v := float64(y) / float64(n)
				w := float64(z) / float64(n)
				d := fbm(u*p.Frequency, v*p.Frequency, w*p.Frequency, p.Octaves, p.Seed)
				d = d*(1-r*r) - p.Coverage*r
				if d <= 0 {
					continue
				}
				g.Set(Coord{int32(x), int32(y), int32(z)}, float32(math.Min(1, d*2)))
			}
		}
	}
	return g
}

func fbm(x, y, z float64, octaves int, seed uint32) float64 {
	sum, amp, norm := 0.0, 0.5, 0.0
	for i := 0; i < octaves; i++ {
		sum += amp * valueNoise(x, y, z, seed+uint32(i)*1013)
		norm += amp
		amp *= 0.5
		x, y, z = x*2, y*2, z*2
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

func valueNoise(x, y, z float64, seed uint32) float64 {
	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := smooth(x-x0), smooth(y-y0), smooth(z-z0)
	ix, iy, iz := int32(x0), int32(y0), int32(z0)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	c := func(dx, dy, dz int32) float64 { return lattice(ix+dx, iy+dy, iz+dz, seed) }

	return lerp(
		lerp(lerp(c(0, 0, 0), c(1, 0, 0), fx), lerp(c(0, 1, 0), c(1, 1, 0), fx), fy),
		lerp(lerp(c(0, 0, 1), c(1, 0, 1), fx), lerp(c(0, 1, 1), c(1, 1, 1), fx), fy),
		fz,
	)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

// lattice hashes an integer point to [0, 1).
func lattice(x, y, z int32, seed uint32) float64 {
	h := uint32(x)*0x8da6b343 ^ uint32(y)*0xd8163841 ^ uint32(z)*0xcb1ab31f ^ seed*0x9e3779b9
	h ^= h >> 15
	h *= 0x2c1b3c6d
	h ^= h >> 12
	h *= 0x297a2d39
	h ^= h >> 15
	return float64(h) / float64(math.MaxUint32+1)
}
