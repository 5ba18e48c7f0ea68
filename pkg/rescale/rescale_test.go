package rescale

import (
	"errors"
	"math"
	"testing"

	"parrecon/pkg/assembly"
	"parrecon/pkg/parrec"
)

// planeArray builds a single-type array of 1x1 slabs so each sample maps to
// one slab with its own coefficients.
func planeArray(t parrec.ImageType, values []float64, intercept, slope, scaleSlope float64) *assembly.ImageArray {
	arr := &assembly.ImageArray{
		Type: t,
		Dims: [6]int{1, 1, len(values), 1, 1, 1},
		Unit: assembly.UnitStored,
		Data: append([]float64(nil), values...),
	}
	for i := range values {
		arr.Slabs = append(arr.Slabs, assembly.Slab{
			Record:           i,
			Offset:           i,
			Slice:            i,
			RescaleIntercept: intercept,
			RescaleSlope:     slope,
			ScaleSlope:       scaleSlope,
		})
	}
	return arr
}

func TestApplyMagnitude(t *testing.T) {
	arr := planeArray(parrec.Magnitude, []float64{100, 200}, 0, 2, 1)

	if err := Apply(arr, 0); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if arr.Unit != assembly.UnitCounts {
		t.Errorf("Unit = %q, want counts", arr.Unit)
	}
	if arr.Data[0] != 200 || arr.Data[1] != 400 {
		t.Errorf("Data = %v, want [200 400]", arr.Data)
	}
}

func TestApplyFullCalibration(t *testing.T) {
	arr := planeArray(parrec.Real, []float64{1000}, -2048, 1.5, 4)

	if err := Apply(arr, 0); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := (1000*1.5 - 2048) / 4
	if math.Abs(arr.Data[0]-want) > 1e-9 {
		t.Errorf("Data[0] = %v, want %v", arr.Data[0], want)
	}
	if arr.Unit != assembly.UnitDimensionless {
		t.Errorf("Unit = %q, want dimensionless", arr.Unit)
	}
}

func TestApplyZeroScaleSlopeSkipsDivision(t *testing.T) {
	arr := planeArray(parrec.Magnitude, []float64{100}, 10, 2, 0)

	if err := Apply(arr, 0); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if arr.Data[0] != 210 {
		t.Errorf("Data[0] = %v, want 210 with division skipped", arr.Data[0])
	}
}

func TestApplyPhaseVelocity(t *testing.T) {
	arr := planeArray(parrec.Phase, []float64{4095}, -2048, 1, 1)

	if err := Apply(arr, 50); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if arr.Unit != assembly.UnitCmPerS {
		t.Errorf("Unit = %q, want cm_per_s", arr.Unit)
	}
	want := (4095 - 2048) * 50 / math.Pi
	if math.Abs(arr.Data[0]-want) > 1e-9 {
		t.Errorf("Data[0] = %v, want %v", arr.Data[0], want)
	}
}

func TestApplyPhaseWithoutVencStaysRadians(t *testing.T) {
	arr := planeArray(parrec.Phase, []float64{100}, 0, 1, 1)

	if err := Apply(arr, 0); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if arr.Unit != assembly.UnitRadians {
		t.Errorf("Unit = %q, want radians", arr.Unit)
	}
	if arr.Data[0] != 100 {
		t.Errorf("Data[0] = %v, want untouched 100", arr.Data[0])
	}
}

func TestApplyRefusesSecondPass(t *testing.T) {
	arr := planeArray(parrec.Magnitude, []float64{100}, 0, 2, 1)

	if err := Apply(arr, 0); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	if err := Apply(arr, 0); !errors.Is(err, assembly.ErrAlreadyRescaled) {
		t.Fatalf("second Apply = %v, want ErrAlreadyRescaled", err)
	}
	if arr.Data[0] != 200 {
		t.Errorf("Data[0] = %v after refused second pass, want 200", arr.Data[0])
	}
}

func TestApplyLeavesSentinelValues(t *testing.T) {
	arr := &assembly.ImageArray{
		Type: parrec.Magnitude,
		Dims: [6]int{1, 1, 2, 1, 1, 1},
		Unit: assembly.UnitStored,
		Data: []float64{100, math.NaN()},
		Slabs: []assembly.Slab{
			{Offset: 0, RescaleSlope: 2, ScaleSlope: 1},
		},
	}
	if err := Apply(arr, 0); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if arr.Data[0] != 200 {
		t.Errorf("Data[0] = %v, want 200", arr.Data[0])
	}
	if !math.IsNaN(arr.Data[1]) {
		t.Errorf("unfilled position = %v, want NaN", arr.Data[1])
	}
}
