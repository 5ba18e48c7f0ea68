// Package visualization renders assembled image arrays as grayscale montage
// figures: one tile per slice, or one tile per sampled dynamic of a time
// series. It consumes arrays read-only and knows nothing about how they
// were reconstructed.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"parrecon/internal/montage"
	"parrecon/pkg/assembly"
)

// Options controls montage layout and intensity windowing.
type Options struct {
	// MaxColumns is the maximum number of tiles per montage row.
	MaxColumns int

	// DynamicInterval is the subsampling step for long dynamic series.
	DynamicInterval int

	// RobustWindow maps the 1st..99th intensity percentiles onto the gray
	// range instead of the raw min/max, so a few hot voxels do not
	// flatten the rest of the image.
	RobustWindow bool
}

// DefaultOptions mirror the defaults of the plotting layer this package
// replaces.
func DefaultOptions() Options {
	return Options{MaxColumns: 4, DynamicInterval: 8}
}

// Viewer renders montages of a single image array.
type Viewer struct {
	arr  *assembly.ImageArray
	opts Options

	zmin, zmax float64
}

// NewViewer creates a viewer over arr. The intensity window is computed once
// over the whole array so every tile shares the same gray scale.
func NewViewer(arr *assembly.ImageArray, opts Options) *Viewer {
	if opts.MaxColumns < 1 {
		opts.MaxColumns = 4
	}
	v := &Viewer{arr: arr, opts: opts}
	v.zmin, v.zmax = window(arr.Data, opts.RobustWindow)
	return v
}

// window computes the shared intensity window, ignoring the NaN sentinel of
// never-filled positions.
func window(data []float64, robust bool) (zmin, zmax float64) {
	finite := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	sort.Float64s(finite)
	if robust {
		zmin = stat.Quantile(0.01, stat.Empirical, finite, nil)
		zmax = stat.Quantile(0.99, stat.Empirical, finite, nil)
	} else {
		zmin = finite[0]
		zmax = finite[len(finite)-1]
	}
	if zmax <= zmin {
		zmax = zmin + 1
	}
	return zmin, zmax
}

// SliceMontage tiles every slice of the array at the given dynamic position
// (echo 0, cardiac phase 0) into one figure.
func (v *Viewer) SliceMontage(dynamic int) (image.Image, error) {
	if dynamic < 0 || dynamic >= v.arr.Dims[4] {
		return nil, fmt.Errorf("dynamic %d out of range, array has %d", dynamic, v.arr.Dims[4])
	}

	numSlices := v.arr.Dims[2]
	rows, cols := montage.Grid(numSlices, v.opts.MaxColumns)

	out := image.NewGray16(image.Rect(0, 0, cols*v.arr.Cols(), rows*v.arr.Rows()))
	for i := 0; i < numSlices; i++ {
		tileX := (i % cols) * v.arr.Cols()
		tileY := (i / cols) * v.arr.Rows()
		v.drawPlane(out, tileX, tileY, i, dynamic)
	}
	return out, nil
}

// DynamicsMontage tiles a subsampled set of dynamics of one slice (echo 0,
// cardiac phase 0) into one figure. Long series are thinned per the
// configured interval with first and last frame kept.
func (v *Viewer) DynamicsMontage(slice int) (image.Image, error) {
	if slice < 0 || slice >= v.arr.Dims[2] {
		return nil, fmt.Errorf("slice %d out of range, array has %d", slice, v.arr.Dims[2])
	}
	if v.arr.Dims[4] < 2 {
		return nil, fmt.Errorf("array has no dynamic series to tile")
	}

	indices := montage.DynamicIndices(v.arr.Dims[4], v.opts.DynamicInterval)
	rows, cols := montage.Grid(len(indices), v.opts.MaxColumns)

	out := image.NewGray16(image.Rect(0, 0, cols*v.arr.Cols(), rows*v.arr.Rows()))
	for i, d := range indices {
		tileX := (i % cols) * v.arr.Cols()
		tileY := (i / cols) * v.arr.Rows()
		v.drawPlane(out, tileX, tileY, slice, d)
	}
	return out, nil
}

// drawPlane maps one row×column plane onto the shared gray window and blits
// it at (tileX, tileY). Sentinel positions render black.
func (v *Viewer) drawPlane(dst *image.Gray16, tileX, tileY, slice, dynamic int) {
	scale := 65535.0 / (v.zmax - v.zmin)
	for y := 0; y < v.arr.Rows(); y++ {
		for x := 0; x < v.arr.Cols(); x++ {
			val := v.arr.At(y, x, slice, 0, dynamic, 0)
			var gray uint16
			if !math.IsNaN(val) {
				g := (val - v.zmin) * scale
				if g < 0 {
					g = 0
				} else if g > 65535 {
					g = 65535
				}
				gray = uint16(g)
			}
			dst.SetGray16(tileX+x, tileY+y, color.Gray16{Y: gray})
		}
	}
}

// SaveJPEG writes a rendered montage to path, creating the directory when
// needed.
func SaveJPEG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating figure directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating figure file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encoding figure: %w", err)
	}
	return f.Close()
}
