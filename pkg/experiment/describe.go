package experiment

import (
	"fmt"
	"strings"
	"time"
)

// parDateLayout is the examination date/time format the export tool writes.
const parDateLayout = "2006.01.02 / 15:04:05"

// Describe returns a human-readable summary of the loaded experiment.
// Load must have run first.
func (e *Experiment) Describe() (string, error) {
	if e.model == nil {
		return "", fmt.Errorf("experiment %s has not been loaded", e.Name())
	}
	s := &e.model.Scan

	var b strings.Builder
	b.WriteString("Experiment details:\n")
	fmt.Fprintf(&b, "- Name: %s\n", e.Name())
	fmt.Fprintf(&b, "- Type: %s\n", s.SeriesDataType)
	fmt.Fprintf(&b, "- Date: %s\n\n", formatExamDate(s.ExaminationDate))

	dimension := "2D"
	if strings.Contains(s.SeriesDataType, "3D") || strings.Contains(s.ScanMode, "3D") {
		dimension = "3D"
	}
	dynamics := "none"
	if s.MaxDynamics > 1 {
		dynamics = fmt.Sprintf("%d", s.MaxDynamics)
	}
	yesNo := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}

	b.WriteString("Scan information:\n")
	fmt.Fprintf(&b, "- Technique: %s\n", s.Technique)
	fmt.Fprintf(&b, "- Dimension: %s\n", dimension)
	fmt.Fprintf(&b, "- Resolution: %dx%d pixels\n", s.ScanResolution[0], s.ScanResolution[1])
	fmt.Fprintf(&b, "- Slices: %d\n", s.MaxSlices)
	fmt.Fprintf(&b, "- Dynamics: %s\n", dynamics)
	fmt.Fprintf(&b, "- Flow encoding: %s\n", yesNo(s.Venc() != 0))
	fmt.Fprintf(&b, "- Diffusion encoding: %s\n", yesNo(s.Diffusion))

	return b.String(), nil
}

// formatExamDate renders the header's examination stamp as a readable date,
// falling back to the raw value when the stamp is absent or malformed.
func formatExamDate(raw string) string {
	t, err := time.Parse(parDateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format("January 2, 2006")
}
