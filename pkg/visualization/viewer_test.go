package visualization

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"parrecon/pkg/assembly"
	"parrecon/pkg/parrec"
)

// gradientArray builds a slices x dynamics stack of 2x2 planes where every
// sample equals 100*(slice+1) + 10*(dynamic+1), so tiles are easy to tell
// apart.
func gradientArray(slices, dynamics int) *assembly.ImageArray {
	arr := &assembly.ImageArray{
		Type: parrec.Magnitude,
		Dims: [6]int{2, 2, slices, 1, dynamics, 1},
		Unit: assembly.UnitCounts,
		Data: make([]float64, 2*2*slices*dynamics),
	}
	for d := 0; d < dynamics; d++ {
		for s := 0; s < slices; s++ {
			off := (d*slices + s) * 4
			v := float64(100*(s+1) + 10*(d+1))
			for i := 0; i < 4; i++ {
				arr.Data[off+i] = v
			}
		}
	}
	return arr
}

func TestSliceMontageLayout(t *testing.T) {
	arr := gradientArray(5, 1)
	v := NewViewer(arr, Options{MaxColumns: 4})

	img, err := v.SliceMontage(0)
	if err != nil {
		t.Fatalf("SliceMontage failed: %v", err)
	}
	// 5 slices at up to 4 columns: 2 rows x 4 cols of 2x2 tiles.
	if got, want := img.Bounds(), image.Rect(0, 0, 8, 4); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}

	gray := img.(*image.Gray16)
	// Darkest slice top-left, brightest at the start of the second row.
	if c := gray.Gray16At(0, 0); c.Y != 0 {
		t.Errorf("first tile gray = %d, want 0 (window minimum)", c.Y)
	}
	if c := gray.Gray16At(0, 2); c.Y < 65534 {
		t.Errorf("last tile gray = %d, want window maximum", c.Y)
	}
}

func TestSliceMontageSharedWindow(t *testing.T) {
	arr := gradientArray(2, 2)
	v := NewViewer(arr, Options{MaxColumns: 4})

	first, err := v.SliceMontage(0)
	if err != nil {
		t.Fatalf("SliceMontage(0) failed: %v", err)
	}
	second, err := v.SliceMontage(1)
	if err != nil {
		t.Fatalf("SliceMontage(1) failed: %v", err)
	}

	// Same slice under a shared window must brighten with the dynamic.
	a := first.(*image.Gray16).Gray16At(0, 0).Y
	b := second.(*image.Gray16).Gray16At(0, 0).Y
	if b <= a {
		t.Errorf("gray did not increase across dynamics: %d then %d", a, b)
	}
}

func TestSliceMontageOutOfRange(t *testing.T) {
	v := NewViewer(gradientArray(2, 1), Options{})
	if _, err := v.SliceMontage(1); err == nil {
		t.Fatal("SliceMontage accepted an out-of-range dynamic")
	}
}

func TestDynamicsMontage(t *testing.T) {
	arr := gradientArray(1, 3)
	v := NewViewer(arr, Options{MaxColumns: 4, DynamicInterval: 8})

	img, err := v.DynamicsMontage(0)
	if err != nil {
		t.Fatalf("DynamicsMontage failed: %v", err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, 6, 2); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}

	gray := img.(*image.Gray16)
	if first, last := gray.Gray16At(0, 0).Y, gray.Gray16At(4, 0).Y; last <= first {
		t.Errorf("dynamics tiles not ordered by intensity: %d then %d", first, last)
	}
}

func TestDynamicsMontageRejectsStaticArray(t *testing.T) {
	v := NewViewer(gradientArray(2, 1), Options{})
	if _, err := v.DynamicsMontage(0); err == nil {
		t.Fatal("DynamicsMontage accepted an array without a time series")
	}
}

func TestSentinelRendersBlack(t *testing.T) {
	arr := gradientArray(2, 1)
	arr.Data[4] = math.NaN() // first sample of slice 1

	v := NewViewer(arr, Options{MaxColumns: 4})
	img, err := v.SliceMontage(0)
	if err != nil {
		t.Fatalf("SliceMontage failed: %v", err)
	}
	gray := img.(*image.Gray16)
	if c := gray.Gray16At(2, 0); c != (color.Gray16{Y: 0}) {
		t.Errorf("sentinel pixel = %d, want black", c.Y)
	}
}

func TestWindowRobustPercentiles(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i)
	}
	data[99] = 1e6 // hot voxel

	zmin, zmax := window(data, false)
	if zmax != 1e6 {
		t.Errorf("raw window max = %v, want 1e6", zmax)
	}
	zmin, zmax = window(data, true)
	if zmax >= 1e6 {
		t.Errorf("robust window max = %v, should exclude the hot voxel", zmax)
	}
	if zmin < 0 {
		t.Errorf("robust window min = %v", zmin)
	}
}

func TestWindowAllSentinel(t *testing.T) {
	zmin, zmax := window([]float64{math.NaN(), math.NaN()}, false)
	if zmin != 0 || zmax != 1 {
		t.Errorf("window = [%v, %v], want fallback [0, 1]", zmin, zmax)
	}
}

func TestSaveJPEGCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "figures", "out.jpg")

	img, err := NewViewer(gradientArray(2, 1), Options{}).SliceMontage(0)
	if err != nil {
		t.Fatalf("SliceMontage failed: %v", err)
	}
	if err := SaveJPEG(img, path); err != nil {
		t.Fatalf("SaveJPEG failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("figure not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("figure file is empty")
	}
}
