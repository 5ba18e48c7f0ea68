package container

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"parrecon/pkg/assembly"
	"parrecon/pkg/parrec"
)

// Write serializes the model and arrays to path. The file is written to a
// temporary sibling first and renamed into place on success, so a partially
// written container is never left behind under the final name. Any failure
// is reported as *ExportError wrapping the cause.
func Write(path string, model *parrec.Model, arrays []*assembly.ImageArray) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer func() {
		// No-ops once the rename has succeeded.
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if err := encode(w, model, arrays); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

type writer interface {
	Write([]byte) (int, error)
	WriteString(string) (int, error)
}

func encode(w writer, model *parrec.Model, arrays []*assembly.ImageArray) error {
	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], version)
	if _, err := w.Write(verBuf[:]); err != nil {
		return err
	}

	if err := writeAttrs(w, scanAttrs(model)); err != nil {
		return err
	}

	if err := writeUint32(w, uint32(len(arrays))); err != nil {
		return err
	}
	for _, arr := range arrays {
		if err := writeGroup(w, arr); err != nil {
			return err
		}
	}
	return nil
}

// scanAttrs flattens the scan parameters into named root attributes.
// Booleans become 0/1 integers; the retained unknown header entries keep
// their verbatim keys under an "extra." prefix.
func scanAttrs(model *parrec.Model) []Attr {
	s := &model.Scan
	b := func(v bool) int64 {
		if v {
			return 1
		}
		return 0
	}
	attrs := []Attr{
		{"par_version", string(model.Version())},
		{"patient_name", s.PatientName},
		{"examination_name", s.ExaminationName},
		{"protocol_name", s.ProtocolName},
		{"examination_date", s.ExaminationDate},
		{"series_data_type", s.SeriesDataType},
		{"acquisition_nr", int64(s.AcquisitionNr)},
		{"reconstruction_nr", int64(s.ReconstructionNr)},
		{"scan_duration_s", s.ScanDuration},
		{"max_cardiac_phases", int64(s.MaxCardiacPhases)},
		{"max_echoes", int64(s.MaxEchoes)},
		{"max_slices", int64(s.MaxSlices)},
		{"max_dynamics", int64(s.MaxDynamics)},
		{"max_mixes", int64(s.MaxMixes)},
		{"patient_position", s.PatientPosition},
		{"preparation_direction", s.PreparationDirection},
		{"technique", s.Technique},
		{"scan_mode", s.ScanMode},
		{"scan_resolution", []float64{float64(s.ScanResolution[0]), float64(s.ScanResolution[1])}},
		{"repetition_time_ms", s.RepetitionTime},
		{"fov_mm", s.FOV[:]},
		{"water_fat_shift", s.WaterFatShift},
		{"angulation_midslice_deg", s.AngulationMidslice[:]},
		{"off_centre_midslice_mm", s.OffCentreMidslice[:]},
		{"flow_compensation", b(s.FlowCompensation)},
		{"presaturation", b(s.Presaturation)},
		{"phase_encoding_velocity_cm_per_s", s.PhaseEncodingVelocity[:]},
		{"mtc", b(s.MTC)},
		{"spir", b(s.SPIR)},
		{"epi_factor", int64(s.EPIFactor)},
		{"dynamic_scan", b(s.DynamicScan)},
		{"diffusion", b(s.Diffusion)},
		{"diffusion_echo_time_ms", s.DiffusionEchoTime},
		{"max_diffusion_values", int64(s.MaxDiffusionValues)},
		{"max_gradient_orients", int64(s.MaxGradientOrients)},
		{"number_of_label_types", int64(s.NumberOfLabelTypes)},
	}
	for k, v := range s.Extra {
		attrs = append(attrs, Attr{Name: "extra." + k, Value: v})
	}
	return attrs
}

func writeGroup(w writer, arr *assembly.ImageArray) error {
	if err := writeString(w, arr.Type.String()); err != nil {
		return err
	}

	axes := make([]string, len(assembly.AxisOrder))
	for i, ax := range assembly.AxisOrder {
		axes[i] = string(ax)
	}
	attrs := []Attr{
		{"axes", axes},
		{"unit", string(arr.Unit)},
	}
	if err := writeAttrs(w, attrs); err != nil {
		return err
	}

	// Dataset: rank, dims, element type, payload.
	if err := writeUint8(w, uint8(len(arr.Dims))); err != nil {
		return err
	}
	for _, d := range arr.Dims {
		if err := writeUint64(w, uint64(d)); err != nil {
			return err
		}
	}
	if err := writeUint8(w, dtypeFloat64); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, v := range arr.Data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeAttrs(w writer, attrs []Attr) error {
	if err := writeUint32(w, uint32(len(attrs))); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := writeAttr(w, a); err != nil {
			return fmt.Errorf("attribute %q: %w", a.Name, err)
		}
	}
	return nil
}

func writeAttr(w writer, a Attr) error {
	if err := writeString(w, a.Name); err != nil {
		return err
	}
	switch v := a.Value.(type) {
	case string:
		if err := writeUint8(w, kindString); err != nil {
			return err
		}
		return writeString(w, v)
	case int64:
		if err := writeUint8(w, kindInt); err != nil {
			return err
		}
		return writeUint64(w, uint64(v))
	case float64:
		if err := writeUint8(w, kindFloat); err != nil {
			return err
		}
		return writeUint64(w, math.Float64bits(v))
	case []float64:
		if err := writeUint8(w, kindFloatVec); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(v))); err != nil {
			return err
		}
		for _, f := range v {
			if err := writeUint64(w, math.Float64bits(f)); err != nil {
				return err
			}
		}
		return nil
	case []string:
		if err := writeUint8(w, kindStringList); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(v))); err != nil {
			return err
		}
		for _, s := range v {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported attribute type %T", a.Value)
	}
}

func writeString(w writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func writeUint8(w writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeUint32(w writer, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	_, err := w.Write(buf)
	return err
}

func writeUint64(w writer, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	_, err := w.Write(buf)
	return err
}
