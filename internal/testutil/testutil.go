// Package testutil provides shared test helpers for generating PAR headers
// and REC sample buffers.
package testutil

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Row describes one image-information row of a generated PAR header.
// Zero-valued geometry fields fall back to a 4x4, 16-bit magnitude slab so
// simple tests stay terse.
type Row struct {
	Slice, Echo, Dynamic, Cardiac int
	Type                          int
	IndexInREC                    int
	PixelBits                     int
	Rows, Cols                    int

	RescaleIntercept float64
	RescaleSlope     float64
	ScaleSlope       float64
}

func (r Row) withDefaults() Row {
	if r.Slice == 0 {
		r.Slice = 1
	}
	if r.Echo == 0 {
		r.Echo = 1
	}
	if r.Dynamic == 0 {
		r.Dynamic = 1
	}
	if r.Cardiac == 0 {
		r.Cardiac = 1
	}
	if r.PixelBits == 0 {
		r.PixelBits = 16
	}
	if r.Rows == 0 {
		r.Rows = 4
	}
	if r.Cols == 0 {
		r.Cols = 4
	}
	if r.RescaleSlope == 0 {
		r.RescaleSlope = 1
	}
	if r.ScaleSlope == 0 {
		r.ScaleSlope = 1
	}
	return r
}

// General holds scan-level overrides for a generated header.
type General struct {
	// Venc is written as the phase encoding velocity (0, 0, Venc).
	Venc float64

	// MaxSlices etc. default to 1 when zero.
	MaxSlices, MaxDynamics, MaxEchoes, MaxCardiacPhases int

	// Extra lines are appended verbatim to the general section.
	Extra []string
}

func orOne(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

// PARHeader renders a V4.2 PAR header with the given rows. The general
// section carries a representative set of scan-level entries.
func PARHeader(g General, rows ...Row) string {
	var b strings.Builder

	b.WriteString("# === DATA DESCRIPTION FILE ======================================================\n")
	b.WriteString("# CLINICAL TRYOUT             Research image export tool     V4.2\n")
	b.WriteString("#\n")
	b.WriteString("# === GENERAL INFORMATION ========================================================\n")

	gen := []string{
		".    Patient name                       :   PHANTOM-01",
		".    Examination name                   :   flow-study",
		".    Protocol name                      :   T1_FFE",
		".    Examination date/time              :   2014.09.11 / 09:11:23",
		".    Series Type                        :   Image   MRSERIES",
		".    Acquisition nr                     :   3",
		".    Reconstruction nr                  :   1",
		".    Scan Duration [sec]                :   12.4",
		fmt.Sprintf(".    Max. number of cardiac phases      :   %d", orOne(g.MaxCardiacPhases)),
		fmt.Sprintf(".    Max. number of echoes              :   %d", orOne(g.MaxEchoes)),
		fmt.Sprintf(".    Max. number of slices/locations    :   %d", orOne(g.MaxSlices)),
		fmt.Sprintf(".    Max. number of dynamics            :   %d", orOne(g.MaxDynamics)),
		".    Max. number of mixes               :   1",
		".    Patient position                   :   Head First Supine",
		".    Preparation direction              :   Anterior-Posterior",
		".    Technique                          :   T1TFE",
		".    Scan resolution  (x, y)            :   64  64",
		".    Scan mode                          :   MS",
		".    Repetition time [ms]               :   8.24",
		".    FOV (ap,fh,rl) [mm]                :   130.00  130.00  12.00",
		".    Water Fat shift [pixels]           :   1.46",
		".    Angulation midslice(ap,fh,rl)[degr]:   0.00  0.00  0.00",
		".    Off Centre midslice(ap,fh,rl) [mm] :   0.00  0.00  0.00",
		".    Flow compensation <0=no 1=yes> ?   :   0",
		".    Presaturation     <0=no 1=yes> ?   :   0",
		fmt.Sprintf(".    Phase encoding velocity [cm/sec]   :   0.00  0.00  %.2f", g.Venc),
		".    MTC               <0=no 1=yes> ?   :   0",
		".    SPIR              <0=no 1=yes> ?   :   0",
		".    EPI factor        <0,1=no EPI>     :   1",
		".    Dynamic scan      <0=no 1=yes> ?   :   0",
		".    Diffusion         <0=no 1=yes> ?   :   0",
		".    Diffusion echo time [ms]           :   0.00",
		".    Max. number of diffusion values    :   1",
		".    Max. number of gradient orients    :   1",
		".    Number of label types   <0=no ASL> :   0",
	}
	gen = append(gen, g.Extra...)
	for _, line := range gen {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("#\n")
	b.WriteString("# === IMAGE INFORMATION ==========================================================\n")
	for _, r := range rows {
		b.WriteString(RowText(r))
		b.WriteByte('\n')
	}
	return b.String()
}

// RowText renders one V4.2 image-information row (49 columns).
func RowText(r Row) string {
	r = r.withDefaults()
	cols := []string{
		fmt.Sprintf("%d", r.Slice),
		fmt.Sprintf("%d", r.Echo),
		fmt.Sprintf("%d", r.Dynamic),
		fmt.Sprintf("%d", r.Cardiac),
		fmt.Sprintf("%d", r.Type),
		"0", // scanning sequence
		fmt.Sprintf("%d", r.IndexInREC),
		fmt.Sprintf("%d", r.PixelBits),
		"100", // scan percentage
		fmt.Sprintf("%d", r.Rows),
		fmt.Sprintf("%d", r.Cols),
		fmt.Sprintf("%.5f", r.RescaleIntercept),
		fmt.Sprintf("%.5f", r.RescaleSlope),
		fmt.Sprintf("%.5f", r.ScaleSlope),
		"1070", "1860", // window center/width
		"0.00", "0.00", "0.00", // angulation
		"0.00", "0.00", "0.00", // offcentre
		"6.00", "1.00", // thickness, gap
		"0", "1", "0", "2", // display/slice orientation, fmri, ed/es
		"1.98", "1.98", // pixel spacing
		"8.1", "0.0", "0.0", "0.0", // TE, dyn begin, trigger, b factor
		"1", "10.0", "0", "0", "0", "0", "0.0", // averages..inversion delay
		"1", "1", "0", "0", // b value nr, grad orient nr, contrast, anisotropy
		"0.0", "0.0", "0.0", // diffusion ap/fh/rl
		"1", // label type
	}
	return strings.Join(cols, "  ")
}

// RECBuffer concatenates 16-bit little-endian slabs into one REC buffer.
func RECBuffer(slabs ...[]uint16) []byte {
	var out []byte
	for _, slab := range slabs {
		for _, v := range slab {
			out = binary.LittleEndian.AppendUint16(out, v)
		}
	}
	return out
}

// ConstSlab returns a rows*cols slab filled with a constant sample value.
func ConstSlab(rows, cols int, value uint16) []uint16 {
	slab := make([]uint16, rows*cols)
	for i := range slab {
		slab[i] = value
	}
	return slab
}

// WritePair writes a PAR/REC pair into dir and returns the PAR path.
func WritePair(t *testing.T, dir, name, header string, rec []byte) string {
	t.Helper()
	parPath := filepath.Join(dir, name+".par")
	if err := os.WriteFile(parPath, []byte(header), 0644); err != nil {
		t.Fatalf("writing PAR fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".rec"), rec, 0644); err != nil {
		t.Fatalf("writing REC fixture: %v", err)
	}
	return parPath
}
