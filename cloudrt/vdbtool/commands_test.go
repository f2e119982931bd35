package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
)

func TestGenInfoSlice(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "c.cvdb")
	var out bytes.Buffer

	require.NoError(t, runGen([]string{"-o", file, "-size", "16", "-seed", "7", "-zlib"}, &out))
	assert.Contains(t, out.String(), "wrote")

	out.Reset()
	require.NoError(t, runInfo([]string{file}, &out))
	assert.Contains(t, out.String(), `grid "density"`)
	assert.Contains(t, out.String(), "[16 16 16]")

	pngPath := filepath.Join(dir, "s.png")
	out.Reset()
	require.NoError(t, runSlice([]string{"-scale", "2", file, pngPath}, &out))

	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestGenRejectsBadSize(t *testing.T) {
	err := runGen([]string{"-o", filepath.Join(t.TempDir(), "x"), "-size", "0"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestInfoNeedsFile(t *testing.T) {
	assert.ErrorIs(t, runInfo(nil, &bytes.Buffer{}), errUsage)
}

func TestSliceImage(t *testing.T) {
	g := volume.NewGrid("density", volume.ValueHalf)
	g.SetBounds(volume.AABB{Min: volume.Coord{X: -2, Y: -2, Z: 0}, Max: volume.Coord{X: 1, Y: 1, Z: 1}})
	g.Set(volume.Coord{X: 1, Y: -2, Z: 1}, 1)

	var buf bytes.Buffer
	require.NoError(t, volume.NewWriter(&buf).Write(g))
	vol, err := volume.Decode(&buf)
	require.NoError(t, err)

	img, err := SliceImage(vol, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	// voxel (x=3, y=0) lands bottom-right after the y flip
	r, g2, b, _ := img.At(31, 31).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, r, g2)
	assert.Equal(t, r, b)
	r, _, _, _ = img.At(1, 31).RGBA()
	assert.Equal(t, uint32(0), r)

	_, err = SliceImage(vol, 2, 1)
	assert.ErrorIs(t, err, errUsage)
}
