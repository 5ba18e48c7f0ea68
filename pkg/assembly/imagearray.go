package assembly

import (
	"fmt"

	"parrecon/pkg/parrec"
)

// Axis labels one dimension of an ImageArray.
type Axis string

// Axis labels in fixed dimension order.
const (
	AxisRow          Axis = "row"
	AxisColumn       Axis = "column"
	AxisSlice        Axis = "slice"
	AxisEcho         Axis = "echo"
	AxisDynamic      Axis = "dynamic"
	AxisCardiacPhase Axis = "cardiac_phase"
)

// AxisOrder is the fixed dimension order of every assembled array. Trailing
// axes of extent 1 are kept rather than collapsed so that all arrays share
// one addressing scheme.
var AxisOrder = [6]Axis{AxisRow, AxisColumn, AxisSlice, AxisEcho, AxisDynamic, AxisCardiacPhase}

// Unit tags the physical unit of an array's values.
type Unit string

// Units an array can carry after rescaling.
const (
	UnitCounts        Unit = "counts"
	UnitRadians       Unit = "radians"
	UnitCmPerS        Unit = "cm_per_s"
	UnitDimensionless Unit = "dimensionless"

	// UnitStored marks an array still holding raw stored sample values,
	// before the rescale stage has run.
	UnitStored Unit = "stored"
)

// Slab ties one filled row×column plane of an ImageArray back to the record
// it came from, carrying the rescale coefficients the rescale stage needs.
type Slab struct {
	// Record is the index of the originating record in Model.Records.
	Record int

	// Offset is the start of the slab in Data; the slab occupies
	// Data[Offset : Offset+Rows*Cols] in row-major order.
	Offset int

	// Slice, Echo, Dynamic, CardiacPhase are the zero-based remapped
	// positions of the slab on the non-spatial axes.
	Slice, Echo, Dynamic, CardiacPhase int

	RescaleIntercept float64
	RescaleSlope     float64
	ScaleSlope       float64
}

// ImageArray is one assembled N-dimensional image: all slabs of a single
// image type, in fixed [row, column, slice, echo, dynamic, cardiac_phase]
// dimension order. Positions the scan never filled hold NaN.
//
// Slabs are stored contiguously in acquisition-axis order: slice varies
// fastest, then echo, dynamic and cardiac phase; within a slab samples are
// row-major.
type ImageArray struct {
	// Type is the image type all slabs share.
	Type parrec.ImageType

	// Dims holds the extent of each axis in AxisOrder.
	Dims [6]int

	// Unit is the physical unit of the values; UnitStored until rescaled.
	Unit Unit

	// Data is the flattened sample storage.
	Data []float64

	// Slabs lists the filled planes in record order.
	Slabs []Slab

	rescaled bool
}

// Rows and Cols return the spatial extents.
func (a *ImageArray) Rows() int { return a.Dims[0] }
func (a *ImageArray) Cols() int { return a.Dims[1] }

// Len returns the total number of samples.
func (a *ImageArray) Len() int { return len(a.Data) }

// Rescaled reports whether the rescale stage has already run on this array.
func (a *ImageArray) Rescaled() bool { return a.rescaled }

// ErrAlreadyRescaled is returned when a second rescale pass is attempted on
// the same array. Applying the linear calibration twice would silently
// corrupt the values, so the second call must fail loudly.
var ErrAlreadyRescaled = fmt.Errorf("image array already rescaled")

// MarkRescaled flips the one-shot rescale flag. The rescale stage calls this
// before touching any sample.
func (a *ImageArray) MarkRescaled() error {
	if a.rescaled {
		return ErrAlreadyRescaled
	}
	a.rescaled = true
	return nil
}

// SlabData returns the row-major samples of one slab as a view into Data.
func (a *ImageArray) SlabData(s Slab) []float64 {
	n := a.Rows() * a.Cols()
	return a.Data[s.Offset : s.Offset+n]
}

// slabOffset computes the Data offset of the slab at the given zero-based
// non-spatial positions.
func (a *ImageArray) slabOffset(slice, echo, dynamic, phase int) int {
	idx := ((phase*a.Dims[4]+dynamic)*a.Dims[3]+echo)*a.Dims[2] + slice
	return idx * a.Rows() * a.Cols()
}

// At returns the sample at the given zero-based multi-axis index.
func (a *ImageArray) At(row, col, slice, echo, dynamic, phase int) float64 {
	off := a.slabOffset(slice, echo, dynamic, phase)
	return a.Data[off+row*a.Cols()+col]
}

// newImageArray allocates an array for one image type and fills it with the
// NaN sentinel so that never-written positions are detectable downstream.
func newImageArray(t parrec.ImageType, rows, cols, slices, echoes, dynamics, phases int) *ImageArray {
	a := &ImageArray{
		Type: t,
		Dims: [6]int{rows, cols, slices, echoes, dynamics, phases},
		Unit: UnitStored,
		Data: make([]float64, rows*cols*slices*echoes*dynamics*phases),
	}
	for i := range a.Data {
		a.Data[i] = nan
	}
	return a
}
