package parrec

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ImageType is the Philips image_type_mr code of a stored image.
type ImageType int

// Known image_type_mr codes.
const (
	Magnitude ImageType = 0
	Real      ImageType = 1
	Imaginary ImageType = 2
	Phase     ImageType = 3
)

func (t ImageType) String() string {
	switch t {
	case Magnitude:
		return "magnitude"
	case Real:
		return "real"
	case Imaginary:
		return "imaginary"
	case Phase:
		return "phase"
	default:
		return fmt.Sprintf("type_%d", int(t))
	}
}

// ScanParameters holds the scan-level metadata of one acquisition. All
// unit-bearing fields are normalized at construction: lengths in mm, times
// in ms, velocities in cm/s, angles in degrees. Immutable after NewModel.
type ScanParameters struct {
	PatientName      string
	ExaminationName  string
	ProtocolName     string
	ExaminationDate  string
	SeriesDataType   string
	AcquisitionNr    int
	ReconstructionNr int

	// ScanDuration is the total scan duration in seconds.
	ScanDuration float64

	MaxCardiacPhases int
	MaxEchoes        int
	MaxSlices        int
	MaxDynamics      int
	MaxMixes         int

	PatientPosition      string
	PreparationDirection string
	Technique            string
	ScanMode             string

	// ScanResolution is the acquired matrix size (x, y).
	ScanResolution [2]int

	// RepetitionTime is the TR in ms.
	RepetitionTime float64

	// FOV is the field of view (ap, fh, rl) in mm.
	FOV [3]float64

	WaterFatShift      float64
	AngulationMidslice [3]float64
	OffCentreMidslice  [3]float64

	FlowCompensation bool
	Presaturation    bool

	// PhaseEncodingVelocity is the venc vector (ap, fh, rl) in cm/s.
	// All zeros when the scan carries no flow encoding.
	PhaseEncodingVelocity [3]float64

	MTC         bool
	SPIR        bool
	EPIFactor   int
	DynamicScan bool
	Diffusion   bool

	DiffusionEchoTime  float64
	MaxDiffusionValues int
	MaxGradientOrients int
	NumberOfLabelTypes int

	// Extra retains general-information entries whose keys this model does
	// not recognize, keyed by their verbatim header key.
	Extra map[string]string
}

// Validate checks the scan-level fields that downstream assembly depends on.
func (s *ScanParameters) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.MaxSlices, validation.Min(1)),
		validation.Field(&s.MaxDynamics, validation.Min(1)),
		validation.Field(&s.MaxCardiacPhases, validation.Min(1)),
		validation.Field(&s.MaxEchoes, validation.Min(1)),
		validation.Field(&s.RepetitionTime, validation.Min(0.0)),
	)
}

// Venc returns the velocity-encoding magnitude in cm/s: the largest absolute
// component of the phase-encoding velocity vector, or 0 when the scan has no
// flow encoding.
func (s *ScanParameters) Venc() float64 {
	venc := 0.0
	for _, v := range s.PhaseEncodingVelocity {
		if a := math.Abs(v); a > venc {
			venc = a
		}
	}
	return venc
}

// ImageRecord is the typed form of one image-information row: the metadata
// of a single stored slice/echo/dynamic/cardiac-phase image.
type ImageRecord struct {
	// Slice, Echo, Dynamic and CardiacPhase are the raw scanner indices.
	// They are 1-based in practice and need not be contiguous.
	Slice        int
	Echo         int
	Dynamic      int
	CardiacPhase int

	Type             ImageType
	ScanningSequence int

	// IndexInREC is the zero-based slab index of this image in the REC file.
	IndexInREC int

	// PixelBits is the stored sample width in bits (8 or 16).
	PixelBits int

	// Rows and Cols form the reconstructed resolution of the slab.
	Rows int
	Cols int

	RescaleIntercept float64
	RescaleSlope     float64
	ScaleSlope       float64

	WindowCenter float64
	WindowWidth  float64

	// Angulation and Offcentre are (ap, fh, rl), degrees and mm.
	Angulation [3]float64
	Offcentre  [3]float64

	// SliceThickness and SliceGap are in mm.
	SliceThickness float64
	SliceGap       float64

	DisplayOrientation int
	SliceOrientation   int
	TypeEdEs           int

	// PixelSpacing is the in-plane spacing (x, y) in mm.
	PixelSpacing [2]float64

	// EchoTime, DynScanBeginTime, TriggerTime and InversionDelay are in ms.
	EchoTime         float64
	DynScanBeginTime float64
	TriggerTime      float64
	InversionDelay   float64

	DiffusionBFactor float64
	NumberOfAverages int
	FlipAngle        float64
	CardiacFrequency int
	MinRRInterval    int
	MaxRRInterval    int
	TurboFactor      int

	// V4.1+ diffusion columns; zero-valued under V4.
	DiffusionBValueNr   int
	GradientOrientNr    int
	ContrastType        int
	DiffusionAnisotropy int
	Diffusion           [3]float64

	// LabelType is the ASL label type (V4.2 only).
	LabelType int
}

// SlabBytes returns the byte length of this record's slab in the REC file.
func (r *ImageRecord) SlabBytes() int64 {
	return int64(r.Rows) * int64(r.Cols) * int64(r.PixelBits/8)
}

// AxisExtents counts the distinct raw index values present for one image
// type. These are the non-spatial array extents the assembler allocates.
type AxisExtents struct {
	Slices        int
	Echoes        int
	Dynamics      int
	CardiacPhases int
}

// Model aggregates the validated scan parameters and the ordered record
// sequence of one parsed PAR header. A Model is immutable after NewModel;
// the assembler and exporter consume it read-only.
type Model struct {
	Scan    ScanParameters
	Records []ImageRecord

	version Version

	// Derived values, computed once in NewModel.
	numSlices  int
	imageTypes []ImageType
	extents    map[ImageType]AxisExtents
}

// Version returns the PAR schema version the model was parsed from.
func (m *Model) Version() Version { return m.version }

// NumSlices returns the number of distinct slice indices across all records.
func (m *Model) NumSlices() int { return m.numSlices }

// ImageTypes returns the distinct image types present, in ascending code
// order.
func (m *Model) ImageTypes() []ImageType { return m.imageTypes }

// Extents returns the per-axis distinct index counts for one image type.
func (m *Model) Extents(t ImageType) (AxisExtents, bool) {
	e, ok := m.extents[t]
	return e, ok
}

// NewModel validates and normalizes a raw header into a Model. Records with
// out-of-range fields are excluded and reported as InvalidParameterError
// values in the warning list; the remaining records still form a usable
// scan. A scan-level validation failure is fatal.
func NewModel(raw *RawHeader) (*Model, []error, error) {
	scan, err := scanParametersFrom(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := scan.Validate(); err != nil {
		return nil, nil, fmt.Errorf("scan parameters: %w", err)
	}

	var warnings []error
	records := make([]ImageRecord, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		rec := recordFrom(row.Values)
		if werr := validateRecord(&rec, i); werr != nil {
			warnings = append(warnings, werr)
			continue
		}
		records = append(records, rec)
	}

	m := &Model{
		Scan:    *scan,
		Records: records,
		version: raw.Version,
	}
	m.deriveExtents()
	return m, warnings, nil
}

// validateRecord checks the numeric ranges the assembler relies on. The
// first violation found wins; one warning per bad record is enough.
func validateRecord(rec *ImageRecord, idx int) error {
	checks := []struct {
		field string
		value float64
		ok    bool
	}{
		{"slice number", float64(rec.Slice), rec.Slice >= 0},
		{"echo number", float64(rec.Echo), rec.Echo >= 0},
		{"dynamic scan number", float64(rec.Dynamic), rec.Dynamic >= 0},
		{"cardiac phase number", float64(rec.CardiacPhase), rec.CardiacPhase >= 0},
		{"index in REC file", float64(rec.IndexInREC), rec.IndexInREC >= 0},
		{"recon resolution x", float64(rec.Rows), rec.Rows > 0},
		{"recon resolution y", float64(rec.Cols), rec.Cols > 0},
		{"image pixel size", float64(rec.PixelBits), rec.PixelBits == 8 || rec.PixelBits == 16},
	}
	for _, c := range checks {
		if !c.ok {
			return &InvalidParameterError{Field: c.field, Record: idx, Value: c.value}
		}
	}
	return nil
}

// deriveExtents computes the cached per-type axis extents and the distinct
// slice count.
func (m *Model) deriveExtents() {
	slices := make(map[int]struct{})
	type axisSets struct {
		slices, echoes, dynamics, phases map[int]struct{}
	}
	perType := make(map[ImageType]*axisSets)

	for _, rec := range m.Records {
		slices[rec.Slice] = struct{}{}
		s, ok := perType[rec.Type]
		if !ok {
			s = &axisSets{
				slices:   make(map[int]struct{}),
				echoes:   make(map[int]struct{}),
				dynamics: make(map[int]struct{}),
				phases:   make(map[int]struct{}),
			}
			perType[rec.Type] = s
		}
		s.slices[rec.Slice] = struct{}{}
		s.echoes[rec.Echo] = struct{}{}
		s.dynamics[rec.Dynamic] = struct{}{}
		s.phases[rec.CardiacPhase] = struct{}{}
	}

	m.numSlices = len(slices)
	m.extents = make(map[ImageType]AxisExtents, len(perType))
	m.imageTypes = make([]ImageType, 0, len(perType))
	for t, s := range perType {
		m.imageTypes = append(m.imageTypes, t)
		m.extents[t] = AxisExtents{
			Slices:        len(s.slices),
			Echoes:        len(s.echoes),
			Dynamics:      len(s.dynamics),
			CardiacPhases: len(s.phases),
		}
	}
	sort.Slice(m.imageTypes, func(i, j int) bool { return m.imageTypes[i] < m.imageTypes[j] })
}

// recordFrom maps one tokenized row onto an ImageRecord. Column order is
// fixed by the version schema; rows reaching this point already have the
// right arity, and trailing V4.1/V4.2 columns default to zero under older
// versions.
func recordFrom(v []float64) ImageRecord {
	at := func(i int) float64 {
		if i < len(v) {
			return v[i]
		}
		return 0
	}
	rec := ImageRecord{
		Slice:            int(at(0)),
		Echo:             int(at(1)),
		Dynamic:          int(at(2)),
		CardiacPhase:     int(at(3)),
		Type:             ImageType(at(4)),
		ScanningSequence: int(at(5)),
		IndexInREC:       int(at(6)),
		PixelBits:        int(at(7)),
		Rows:             int(at(9)),
		Cols:             int(at(10)),
		RescaleIntercept: at(11),
		RescaleSlope:     at(12),
		ScaleSlope:       at(13),
		WindowCenter:     at(14),
		WindowWidth:      at(15),
		Angulation:       [3]float64{at(16), at(17), at(18)},
		Offcentre:        [3]float64{at(19), at(20), at(21)},
		SliceThickness:   at(22),
		SliceGap:         at(23),

		DisplayOrientation: int(at(24)),
		SliceOrientation:   int(at(25)),
		TypeEdEs:           int(at(27)),
		PixelSpacing:       [2]float64{at(28), at(29)},
		EchoTime:           at(30),
		DynScanBeginTime:   at(31),
		TriggerTime:        at(32),
		DiffusionBFactor:   at(33),
		NumberOfAverages:   int(at(34)),
		FlipAngle:          at(35),
		CardiacFrequency:   int(at(36)),
		MinRRInterval:      int(at(37)),
		MaxRRInterval:      int(at(38)),
		TurboFactor:        int(at(39)),
		InversionDelay:     at(40),

		DiffusionBValueNr:   int(at(41)),
		GradientOrientNr:    int(at(42)),
		ContrastType:        int(at(43)),
		DiffusionAnisotropy: int(at(44)),
		Diffusion:           [3]float64{at(45), at(46), at(47)},
		LabelType:           int(at(48)),
	}
	return rec
}

// scanParametersFrom coerces the untyped general-information entries into
// typed scan parameters. Unrecognized keys are retained in Extra.
func scanParametersFrom(raw *RawHeader) (*ScanParameters, error) {
	s := &ScanParameters{Extra: make(map[string]string)}

	known := map[string]func(string) error{
		"patient name":                    setString(&s.PatientName),
		"examination name":                setString(&s.ExaminationName),
		"protocol name":                   setString(&s.ProtocolName),
		"examination date/time":           setString(&s.ExaminationDate),
		"series data type":                setString(&s.SeriesDataType),
		"series type":                     setString(&s.SeriesDataType),
		"acquisition nr":                  setInt(&s.AcquisitionNr),
		"reconstruction nr":               setInt(&s.ReconstructionNr),
		"scan duration":                   setFloat(&s.ScanDuration),
		"max. number of cardiac phases":   setInt(&s.MaxCardiacPhases),
		"max. number of echoes":           setInt(&s.MaxEchoes),
		"max. number of slices/locations": setInt(&s.MaxSlices),
		"max. number of dynamics":         setInt(&s.MaxDynamics),
		"max. number of mixes":            setInt(&s.MaxMixes),
		"patient position":                setString(&s.PatientPosition),
		"preparation direction":           setString(&s.PreparationDirection),
		"technique":                       setString(&s.Technique),
		"scan mode":                       setString(&s.ScanMode),
		"scan resolution":                 setInt2(&s.ScanResolution),
		"repetition time":                 setFloat(&s.RepetitionTime),
		"fov":                             setFloat3(&s.FOV),
		"water fat shift":                 setFloat(&s.WaterFatShift),
		"angulation midslice":             setFloat3(&s.AngulationMidslice),
		"off centre midslice":             setFloat3(&s.OffCentreMidslice),
		"flow compensation":               setBool(&s.FlowCompensation),
		"presaturation":                   setBool(&s.Presaturation),
		"phase encoding velocity":         setFloat3(&s.PhaseEncodingVelocity),
		"mtc":                             setBool(&s.MTC),
		"spir":                            setBool(&s.SPIR),
		"epi factor":                      setInt(&s.EPIFactor),
		"dynamic scan":                    setBool(&s.DynamicScan),
		"diffusion":                       setBool(&s.Diffusion),
		"diffusion echo time":             setFloat(&s.DiffusionEchoTime),
		"max. number of diffusion values": setInt(&s.MaxDiffusionValues),
		"max. number of gradient orients": setInt(&s.MaxGradientOrients),
		"number of label types":           setInt(&s.NumberOfLabelTypes),
	}

	for _, e := range raw.General {
		set, ok := known[normalizeKey(e.Key)]
		if !ok {
			s.Extra[e.Key] = e.Value
			continue
		}
		if err := set(e.Value); err != nil {
			return nil, fmt.Errorf("general information %q: %w", e.Key, err)
		}
	}
	return s, nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		f, err := parseFirstFloat(v)
		if err != nil {
			return err
		}
		*dst = int(f)
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := parseFirstFloat(v)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		f, err := parseFirstFloat(v)
		if err != nil {
			return err
		}
		*dst = f != 0
		return nil
	}
}

func setInt2(dst *[2]int) func(string) error {
	return func(v string) error {
		fs, err := parseFloats(v, 2)
		if err != nil {
			return err
		}
		*dst = [2]int{int(fs[0]), int(fs[1])}
		return nil
	}
}

func setFloat3(dst *[3]float64) func(string) error {
	return func(v string) error {
		fs, err := parseFloats(v, 3)
		if err != nil {
			return err
		}
		copy(dst[:], fs)
		return nil
	}
}

func parseFirstFloat(v string) (float64, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func parseFloats(v string, n int) ([]float64, error) {
	fields := strings.Fields(v)
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, found %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
