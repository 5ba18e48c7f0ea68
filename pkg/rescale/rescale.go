// Package rescale converts assembled arrays from stored integer sample
// values to physical units using each record's linear calibration
// coefficients. The transformation runs in place and exactly once per
// array; a second invocation fails instead of double-applying the scale.
package rescale

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"parrecon/pkg/assembly"
	"parrecon/pkg/parrec"
)

// Apply transforms every filled slab of arr to physical units:
//
//	physical = (stored * rescale_slope + rescale_intercept) / scale_slope
//
// A zero scale slope means the coefficient is absent and the division is
// skipped. Phase images are tagged radians and, when venc is non-zero,
// further converted to velocity in cm/s via physical * venc / pi.
//
// Apply returns assembly.ErrAlreadyRescaled when the array has been
// rescaled before; the values are left untouched in that case.
func Apply(arr *assembly.ImageArray, venc float64) error {
	if err := arr.MarkRescaled(); err != nil {
		return err
	}

	for _, slab := range arr.Slabs {
		data := arr.SlabData(slab)
		if slab.RescaleSlope != 1 {
			floats.Scale(slab.RescaleSlope, data)
		}
		if slab.RescaleIntercept != 0 {
			floats.AddConst(slab.RescaleIntercept, data)
		}
		if slab.ScaleSlope != 0 && slab.ScaleSlope != 1 {
			floats.Scale(1/slab.ScaleSlope, data)
		}
	}

	arr.Unit = unitFor(arr.Type, venc)
	if arr.Unit == assembly.UnitCmPerS {
		floats.Scale(venc/math.Pi, arr.Data)
	}
	return nil
}

// unitFor maps an image type to the physical unit its rescaled values
// carry. Spin-density (magnitude) images stay in raw scanner counts; phase
// images are radians, or velocity when the scan is flow encoded.
func unitFor(t parrec.ImageType, venc float64) assembly.Unit {
	switch t {
	case parrec.Magnitude:
		return assembly.UnitCounts
	case parrec.Phase:
		if venc != 0 {
			return assembly.UnitCmPerS
		}
		return assembly.UnitRadians
	default:
		return assembly.UnitDimensionless
	}
}
