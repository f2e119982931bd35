package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
)

var errUsage = errors.New("bad arguments")

func runGen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("o", "cloud.cvdb", "Output file")
	size := fs.Int("size", 64, "Voxels per axis")
	seed := fs.Uint("seed", 1, "Noise seed")
	f32 := fs.Bool("float32", false, "Store float32 leaves instead of half")
	compress := fs.Bool("zlib", false, "Zlib-compress leaf payloads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size <= 0 || *size > 1024 {
		return fmt.Errorf("%w: size %d out of range 1..1024", errUsage, *size)
	}

	params := volume.DefaultCloudParams(*size, uint32(*seed))
	if *f32 {
		params.Type = volume.ValueFloat32
	}
	g := volume.GenerateCloud(params)

	var opts []volume.WriterOption
	if *compress {
		opts = append(opts, volume.WithZlib(zlib.DefaultCompression))
	}
	f, err := os.Create(*path)
	if err != nil {
		return err
	}
	if err := volume.NewWriter(f, opts...).Write(g); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s: %d active voxels in %d leaves\n", *path, g.ActiveVoxels(), g.LeafCount())
	return nil
}

func runInfo(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: info takes one file", errUsage)
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := volume.NewReader(f)
	if err != nil {
		return err
	}
	for _, name := range r.GridNames() {
		g, err := r.ReadGrid(name)
		if err != nil {
			return err
		}
		b := g.Bounds()
		fmt.Fprintf(out, "grid %q\n", name)
		fmt.Fprintf(out, "  type      %v\n", g.Type)
		fmt.Fprintf(out, "  bounds    %v .. %v\n", b.Min, b.Max)
		fmt.Fprintf(out, "  extent    %v\n", b.Extent())
		fmt.Fprintf(out, "  voxels    %d active in %d leaves\n", g.ActiveVoxels(), g.LeafCount())
		if g.Creator != "" {
			fmt.Fprintf(out, "  creator   %s\n", g.Creator)
		}
	}
	return nil
}

func runSlice(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("slice", flag.ContinueOnError)
	fs.SetOutput(out)
	z := fs.Int("z", -1, "Slice index along z relative to the bounds; -1 picks the middle")
	scale := fs.Int("scale", 4, "Output magnification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: slice takes an input and an output file", errUsage)
	}
	if *scale < 1 {
		return fmt.Errorf("%w: scale must be >= 1", errUsage)
	}

	vol, err := volume.DecodeFile(fs.Arg(0))
	if err != nil {
		return err
	}
	k := *z
	if k < 0 {
		k = vol.Extent[2] / 2
	}
	img, err := SliceImage(vol, k, *scale)
	if err != nil {
		return err
	}

	f, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s (%dx%d, z=%d)\n", fs.Arg(1), img.Bounds().Dx(), img.Bounds().Dy(), k)
	return nil
}

// SliceImage renders the density of plane z (relative to vol.Min) as a
// grayscale image magnified by scale, with the slice index in the corner.
func SliceImage(vol *volume.DenseVolume, z, scale int) (*image.RGBA, error) {
	if z < 0 || z >= vol.Extent[2] {
		return nil, fmt.Errorf("%w: z %d outside 0..%d", errUsage, z, vol.Extent[2]-1)
	}
	w, h := vol.Extent[0], vol.Extent[1]
	src := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := volume.Coord{X: vol.Min.X + int32(x), Y: vol.Min.Y + int32(y), Z: vol.Min.Z + int32(z)}
			d := min(max(vol.At(c), 0), 1)
			// flip so +y is up
			src.SetGray(x, h-1-y, color.Gray{Y: uint8(d*255 + 0.5)})
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 200, B: 0, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(2, 13),
	}
	d.DrawString(fmt.Sprintf("z=%d", z))
	return dst, nil
}
