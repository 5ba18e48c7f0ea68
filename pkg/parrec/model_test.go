package parrec

import (
	"errors"
	"math"
	"strings"
	"testing"

	"parrecon/internal/testutil"
)

func parseModel(t *testing.T, text string) (*Model, []error) {
	t.Helper()
	hdr, warns, err := ParseHeader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected parse warnings: %v", warns)
	}
	model, modelWarns, err := NewModel(hdr)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	return model, modelWarns
}

func TestNewModelScanParameters(t *testing.T) {
	text := testutil.PARHeader(testutil.General{
		MaxSlices: 2,
		Venc:      50,
		Extra:     []string{".    Future mystery field               :   42"},
	}, testutil.Row{Slice: 1}, testutil.Row{Slice: 2, IndexInREC: 1})

	model, warns := parseModel(t, text)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}

	s := model.Scan
	if s.PatientName != "PHANTOM-01" {
		t.Errorf("PatientName = %q", s.PatientName)
	}
	if s.Technique != "T1TFE" {
		t.Errorf("Technique = %q", s.Technique)
	}
	if s.RepetitionTime != 8.24 {
		t.Errorf("RepetitionTime = %v, want 8.24", s.RepetitionTime)
	}
	if s.ScanResolution != [2]int{64, 64} {
		t.Errorf("ScanResolution = %v", s.ScanResolution)
	}
	if s.FOV != [3]float64{130, 130, 12} {
		t.Errorf("FOV = %v", s.FOV)
	}
	if s.MaxSlices != 2 {
		t.Errorf("MaxSlices = %d, want 2", s.MaxSlices)
	}
	if s.FlowCompensation || s.Diffusion {
		t.Error("boolean flags should be false for 0 values")
	}
	if got := s.Venc(); got != 50 {
		t.Errorf("Venc = %v, want 50", got)
	}
	if v, ok := s.Extra["Future mystery field"]; !ok || v != "42" {
		t.Errorf("unknown key not retained: %v", s.Extra)
	}
	if model.Version() != V42 {
		t.Errorf("Version = %q", model.Version())
	}
}

func TestNewModelRecordFields(t *testing.T) {
	text := testutil.PARHeader(testutil.General{},
		testutil.Row{Slice: 3, Echo: 2, Dynamic: 4, Cardiac: 1, Type: 3, IndexInREC: 7,
			Rows: 64, Cols: 32, RescaleIntercept: -2048, RescaleSlope: 1.5, ScaleSlope: 2},
	)
	model, warns := parseModel(t, text)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if len(model.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(model.Records))
	}

	r := model.Records[0]
	if r.Slice != 3 || r.Echo != 2 || r.Dynamic != 4 || r.CardiacPhase != 1 {
		t.Errorf("index fields = %d/%d/%d/%d", r.Slice, r.Echo, r.Dynamic, r.CardiacPhase)
	}
	if r.Type != Phase {
		t.Errorf("Type = %v, want phase", r.Type)
	}
	if r.IndexInREC != 7 || r.PixelBits != 16 {
		t.Errorf("IndexInREC/PixelBits = %d/%d", r.IndexInREC, r.PixelBits)
	}
	if r.Rows != 64 || r.Cols != 32 {
		t.Errorf("resolution = %dx%d", r.Rows, r.Cols)
	}
	if r.RescaleIntercept != -2048 || r.RescaleSlope != 1.5 || r.ScaleSlope != 2 {
		t.Errorf("rescale coefficients = %v/%v/%v", r.RescaleIntercept, r.RescaleSlope, r.ScaleSlope)
	}
	if r.SlabBytes() != 64*32*2 {
		t.Errorf("SlabBytes = %d", r.SlabBytes())
	}
	if r.PixelSpacing != [2]float64{1.98, 1.98} {
		t.Errorf("PixelSpacing = %v", r.PixelSpacing)
	}
	if r.EchoTime != 8.1 {
		t.Errorf("EchoTime = %v", r.EchoTime)
	}
}

func TestNewModelExcludesInvalidRecord(t *testing.T) {
	good := testutil.RowText(testutil.Row{Slice: 1})
	// A negative recon resolution is physically meaningless.
	bad := strings.Replace(testutil.RowText(testutil.Row{Slice: 2, IndexInREC: 1}), "  4  4  ", "  -4  4  ", 1)

	text := testutil.PARHeader(testutil.General{MaxSlices: 2}) + good + "\n" + bad + "\n"
	model, warns := parseModel(t, text)

	if len(warns) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warns), warns)
	}
	var ipe *InvalidParameterError
	if !errors.As(warns[0], &ipe) {
		t.Fatalf("warning is %T, want *InvalidParameterError", warns[0])
	}
	if ipe.Record != 1 {
		t.Errorf("warning names record %d, want 1", ipe.Record)
	}
	if len(model.Records) != 1 {
		t.Errorf("invalid record not excluded, have %d records", len(model.Records))
	}
}

func TestModelDerivedAccessors(t *testing.T) {
	text := testutil.PARHeader(testutil.General{MaxSlices: 2, MaxDynamics: 2},
		testutil.Row{Slice: 1, Dynamic: 1, Type: 0, IndexInREC: 0},
		testutil.Row{Slice: 2, Dynamic: 1, Type: 0, IndexInREC: 1},
		testutil.Row{Slice: 1, Dynamic: 2, Type: 0, IndexInREC: 2},
		testutil.Row{Slice: 2, Dynamic: 2, Type: 0, IndexInREC: 3},
		testutil.Row{Slice: 1, Dynamic: 1, Type: 3, IndexInREC: 4},
		testutil.Row{Slice: 2, Dynamic: 1, Type: 3, IndexInREC: 5},
	)
	model, warns := parseModel(t, text)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}

	if model.NumSlices() != 2 {
		t.Errorf("NumSlices = %d, want 2", model.NumSlices())
	}

	types := model.ImageTypes()
	if len(types) != 2 || types[0] != Magnitude || types[1] != Phase {
		t.Errorf("ImageTypes = %v, want [magnitude phase]", types)
	}

	mag, ok := model.Extents(Magnitude)
	if !ok {
		t.Fatal("no extents for magnitude")
	}
	if mag != (AxisExtents{Slices: 2, Echoes: 1, Dynamics: 2, CardiacPhases: 1}) {
		t.Errorf("magnitude extents = %+v", mag)
	}

	ph, _ := model.Extents(Phase)
	if ph.Dynamics != 1 {
		t.Errorf("phase dynamics extent = %d, want 1", ph.Dynamics)
	}
}

func TestVencZeroWithoutFlowEncoding(t *testing.T) {
	text := testutil.PARHeader(testutil.General{}, testutil.Row{})
	model, _ := parseModel(t, text)
	if v := model.Scan.Venc(); v != 0 {
		t.Errorf("Venc = %v, want 0", v)
	}
}

func TestImageTypeString(t *testing.T) {
	tests := []struct {
		t    ImageType
		want string
	}{
		{Magnitude, "magnitude"},
		{Real, "real"},
		{Imaginary, "imaginary"},
		{Phase, "phase"},
		{ImageType(17), "type_17"},
	}
	for _, tc := range tests {
		if got := tc.t.String(); got != tc.want {
			t.Errorf("ImageType(%d).String() = %q, want %q", int(tc.t), got, tc.want)
		}
	}
}

func TestVencUsesLargestComponent(t *testing.T) {
	s := ScanParameters{PhaseEncodingVelocity: [3]float64{-80, 20, 0}}
	if v := s.Venc(); math.Abs(v-80) > 1e-12 {
		t.Errorf("Venc = %v, want 80", v)
	}
}
