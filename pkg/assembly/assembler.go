// Package assembly maps the raw REC sample buffer into ordered, fixed-axis
// image arrays, one per image type, using the record metadata of a parsed
// parameter model. Image types are assembled independently and in parallel;
// each worker fills a disjoint array.
package assembly

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"parrecon/pkg/parrec"
)

var nan = math.NaN()

// TruncatedDataError reports a REC buffer shorter than the record metadata
// requires. Fatal: no array can be trusted when the buffer ends early.
type TruncatedDataError struct {
	// Need is the byte length the records declare, Got the actual length.
	Need int64
	Got  int64
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("REC buffer truncated: records declare %d bytes, buffer holds %d", e.Need, e.Got)
}

// InconsistentGeometryError reports a record whose geometry disagrees with
// the common geometry of its image type. The record is skipped; the image
// type survives as long as at least one record fits.
type InconsistentGeometryError struct {
	// Record is the index of the record in Model.Records.
	Record int
	Type   parrec.ImageType
	Reason string
}

func (e *InconsistentGeometryError) Error() string {
	return fmt.Sprintf("inconsistent geometry in %s record %d: %s", e.Type, e.Record, e.Reason)
}

// axisMap is the mandatory remapping from raw scanner index values to dense
// zero-based positions. Raw indices need not start at zero or be contiguous;
// the map is built once per image type and preserves the raw order, so
// position order matches acquisition order.
type axisMap map[int]int

func newAxisMap(raw []int) axisMap {
	uniq := make(map[int]struct{}, len(raw))
	for _, v := range raw {
		uniq[v] = struct{}{}
	}
	sorted := make([]int, 0, len(uniq))
	for v := range uniq {
		sorted = append(sorted, v)
	}
	sort.Ints(sorted)
	m := make(axisMap, len(sorted))
	for pos, v := range sorted {
		m[v] = pos
	}
	return m
}

// Assembler reads REC sample buffers and produces image arrays. The zero
// value is not usable; construct with NewAssembler.
type Assembler struct {
	model *parrec.Model

	// workers bounds the number of image types assembled concurrently.
	// Zero means one worker per image type.
	workers int
}

// NewAssembler returns an assembler over a validated model. workers bounds
// per-image-type parallelism; pass 0 to run every image type concurrently.
func NewAssembler(model *parrec.Model, workers int) *Assembler {
	return &Assembler{model: model, workers: workers}
}

// Assemble reads slabs from the REC buffer and produces one ImageArray per
// image type present in the model, ordered by image type code.
//
// size is the total byte length of the buffer; a buffer shorter than the
// sum of declared record sizes fails with TruncatedDataError before any
// array is built. Records whose geometry disagrees with their image type's
// common geometry are skipped with an InconsistentGeometryError warning;
// an image type left with no usable record is dropped with a warning.
func (a *Assembler) Assemble(ctx context.Context, r io.ReaderAt, size int64) ([]*ImageArray, []error, error) {
	if err := a.checkLength(size); err != nil {
		return nil, nil, err
	}

	byType := a.groupRecords()

	var (
		mu       sync.Mutex
		arrays   []*ImageArray
		warnings []error
	)

	g, ctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		g.SetLimit(a.workers)
	}
	for _, t := range a.model.ImageTypes() {
		t := t
		recs := byType[t]
		g.Go(func() error {
			arr, warns, err := a.assembleType(ctx, r, t, recs)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, warns...)
			if arr != nil {
				arrays = append(arrays, arr)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, warnings, err
	}

	sort.Slice(arrays, func(i, j int) bool { return arrays[i].Type < arrays[j].Type })
	return arrays, warnings, nil
}

// recordRef pairs a record with its index in Model.Records, which warning
// messages and slabs refer back to.
type recordRef struct {
	idx int
	rec *parrec.ImageRecord
}

func (a *Assembler) groupRecords() map[parrec.ImageType][]recordRef {
	byType := make(map[parrec.ImageType][]recordRef)
	for i := range a.model.Records {
		rec := &a.model.Records[i]
		byType[rec.Type] = append(byType[rec.Type], recordRef{idx: i, rec: rec})
	}
	return byType
}

// checkLength verifies the buffer covers every declared slab. The REC file
// is a flat concatenation of equal-addressed slabs, so the requirement is
// the end of the furthest slab.
func (a *Assembler) checkLength(size int64) error {
	var need int64
	for i := range a.model.Records {
		rec := &a.model.Records[i]
		end := int64(rec.IndexInREC)*rec.SlabBytes() + rec.SlabBytes()
		if end > need {
			need = end
		}
	}
	if size < need {
		return &TruncatedDataError{Need: need, Got: size}
	}
	return nil
}

// assembleType builds the array for a single image type. A nil array with
// warnings means the type was dropped entirely.
func (a *Assembler) assembleType(ctx context.Context, r io.ReaderAt, t parrec.ImageType, refs []recordRef) (*ImageArray, []error, error) {
	var warnings []error

	// The most common geometry wins for the type; disagreeing records are
	// skipped rather than forced into a shared shape.
	rows, cols, bits := commonGeometry(refs)
	usable := refs[:0:0]
	for _, ref := range refs {
		if ref.rec.Rows != rows || ref.rec.Cols != cols {
			warnings = append(warnings, &InconsistentGeometryError{
				Record: ref.idx,
				Type:   t,
				Reason: fmt.Sprintf("resolution %dx%d, expected %dx%d", ref.rec.Rows, ref.rec.Cols, rows, cols),
			})
			continue
		}
		if ref.rec.PixelBits != bits {
			warnings = append(warnings, &InconsistentGeometryError{
				Record: ref.idx,
				Type:   t,
				Reason: fmt.Sprintf("pixel size %d bits, expected %d", ref.rec.PixelBits, bits),
			})
			continue
		}
		usable = append(usable, ref)
	}
	if len(usable) == 0 {
		warnings = append(warnings, &InconsistentGeometryError{
			Record: refs[0].idx,
			Type:   t,
			Reason: "no record with consistent geometry, image type dropped",
		})
		return nil, warnings, nil
	}

	// Build the raw-index remappings once per type.
	var slices, echoes, dynamics, phases []int
	for _, ref := range usable {
		slices = append(slices, ref.rec.Slice)
		echoes = append(echoes, ref.rec.Echo)
		dynamics = append(dynamics, ref.rec.Dynamic)
		phases = append(phases, ref.rec.CardiacPhase)
	}
	sliceMap := newAxisMap(slices)
	echoMap := newAxisMap(echoes)
	dynamicMap := newAxisMap(dynamics)
	phaseMap := newAxisMap(phases)

	arr := newImageArray(t, rows, cols, len(sliceMap), len(echoMap), len(dynamicMap), len(phaseMap))

	buf := make([]byte, rows*cols*bits/8)
	filled := make(map[int]int, len(usable))

	for _, ref := range usable {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		rec := ref.rec
		slab := Slab{
			Record:           ref.idx,
			Slice:            sliceMap[rec.Slice],
			Echo:             echoMap[rec.Echo],
			Dynamic:          dynamicMap[rec.Dynamic],
			CardiacPhase:     phaseMap[rec.CardiacPhase],
			RescaleIntercept: rec.RescaleIntercept,
			RescaleSlope:     rec.RescaleSlope,
			ScaleSlope:       rec.ScaleSlope,
		}
		slab.Offset = arr.slabOffset(slab.Slice, slab.Echo, slab.Dynamic, slab.CardiacPhase)

		// Two records claiming the same grid position would silently
		// overwrite each other; surface the irregularity and keep the
		// first.
		if prev, dup := filled[slab.Offset]; dup {
			warnings = append(warnings, &InconsistentGeometryError{
				Record: ref.idx,
				Type:   t,
				Reason: fmt.Sprintf("duplicate index tuple, position already filled by record %d", prev),
			})
			continue
		}
		filled[slab.Offset] = ref.idx

		off := int64(rec.IndexInREC) * rec.SlabBytes()
		if _, err := r.ReadAt(buf, off); err != nil {
			return nil, warnings, fmt.Errorf("reading slab for %s record %d: %w", t, ref.idx, err)
		}
		decodeSamples(buf, rec.PixelBits, arr.SlabData(slab))

		arr.Slabs = append(arr.Slabs, slab)
	}

	// A dense grid fills every position; anything less means the index
	// tuples have gaps, which must be surfaced rather than silently left
	// as sentinel values.
	if positions := len(sliceMap) * len(echoMap) * len(dynamicMap) * len(phaseMap); len(arr.Slabs) < positions {
		warnings = append(warnings, &InconsistentGeometryError{
			Record: usable[0].idx,
			Type:   t,
			Reason: fmt.Sprintf("index grid has gaps: %d of %d positions filled", len(arr.Slabs), positions),
		})
	}

	return arr, warnings, nil
}

// commonGeometry returns the most frequent (rows, cols, bits) combination
// among the records of one image type; ties resolve to the first seen.
func commonGeometry(refs []recordRef) (rows, cols, bits int) {
	type geom struct{ rows, cols, bits int }
	counts := make(map[geom]int)
	best, bestCount := geom{}, 0
	for _, ref := range refs {
		g := geom{ref.rec.Rows, ref.rec.Cols, ref.rec.PixelBits}
		counts[g]++
		if counts[g] > bestCount {
			best, bestCount = g, counts[g]
		}
	}
	return best.rows, best.cols, best.bits
}

// decodeSamples converts raw little-endian stored samples to float64.
func decodeSamples(buf []byte, bits int, dst []float64) {
	switch bits {
	case 8:
		for i := range dst {
			dst[i] = float64(buf[i])
		}
	case 16:
		for i := range dst {
			dst[i] = float64(binary.LittleEndian.Uint16(buf[2*i:]))
		}
	}
}
