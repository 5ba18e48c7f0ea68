// Package experiment orchestrates the acquisition-to-image pipeline for one
// PAR/REC experiment: parse and validate the header, assemble the REC
// buffer into per-image-type arrays, rescale them to physical units, and
// export the result as a container file plus optional montage figures.
//
// Each stage is a pure transformation over the previous stage's output.
// Recoverable per-record problems are collected as warnings and surfaced to
// the caller; fatal problems abort the run with one error naming the file
// and cause.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parrecon/pkg/assembly"
	"parrecon/pkg/container"
	"parrecon/pkg/parrec"
	"parrecon/pkg/rescale"
	"parrecon/pkg/visualization"
)

// Params configures one experiment run.
type Params struct {
	// ParPath and RecPath locate the header and sample buffer.
	ParPath string
	RecPath string

	// OutputDir receives the exported container and figures. Defaults to
	// a processed_data directory next to the PAR file.
	OutputDir string

	// Workers bounds per-image-type assembly parallelism; 0 means one
	// worker per image type.
	Workers int

	// SaveFigures renders slice and dynamics montages alongside the
	// container.
	SaveFigures bool

	// Figures controls montage layout when SaveFigures is set.
	Figures visualization.Options

	// Logger receives progress and warning logs; slog.Default when nil.
	Logger *slog.Logger
}

// Experiment is one PAR/REC experiment moving through the pipeline.
type Experiment struct {
	params Params
	log    *slog.Logger

	model    *parrec.Model
	arrays   []*assembly.ImageArray
	warnings []error
}

// New creates an experiment for a PAR/REC pair. The REC path defaults to
// the PAR path with its extension swapped, and the output directory to
// processed_data next to the input.
func New(params Params) *Experiment {
	if params.RecPath == "" {
		params.RecPath = swapExt(params.ParPath)
	}
	if params.OutputDir == "" {
		params.OutputDir = filepath.Join(filepath.Dir(params.ParPath), "processed_data")
	}
	log := params.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Experiment{params: params, log: log}
}

// swapExt maps experiment.par to experiment.rec, preserving the case
// convention of the header extension.
func swapExt(parPath string) string {
	ext := filepath.Ext(parPath)
	rec := ".rec"
	if ext == strings.ToUpper(ext) && ext != "" {
		rec = ".REC"
	}
	return strings.TrimSuffix(parPath, ext) + rec
}

// Name returns the experiment name: the PAR file base without extension.
func (e *Experiment) Name() string {
	base := filepath.Base(e.params.ParPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Model returns the validated parameter model; nil before Load.
func (e *Experiment) Model() *parrec.Model { return e.model }

// Arrays returns the assembled image arrays; nil before Process.
func (e *Experiment) Arrays() []*assembly.ImageArray { return e.arrays }

// Warnings returns the recoverable problems collected so far, in pipeline
// order.
func (e *Experiment) Warnings() []error { return e.warnings }

// Load parses and validates the PAR header.
func (e *Experiment) Load() error {
	f, err := os.Open(e.params.ParPath)
	if err != nil {
		return fmt.Errorf("opening PAR file: %w", err)
	}
	defer f.Close()

	raw, parseWarns, err := parrec.ParseHeader(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", e.params.ParPath, err)
	}
	e.collect(parseWarns)

	model, modelWarns, err := parrec.NewModel(raw)
	if err != nil {
		return fmt.Errorf("validating %s: %w", e.params.ParPath, err)
	}
	e.collect(modelWarns)

	e.model = model
	e.log.Info("header loaded",
		slog.String("par", e.params.ParPath),
		slog.String("version", string(model.Version())),
		slog.Int("records", len(model.Records)),
		slog.Int("slices", model.NumSlices()),
		slog.Int("image_types", len(model.ImageTypes())))
	return nil
}

// Process assembles the REC buffer into arrays and rescales them to
// physical units. Load must have run first.
func (e *Experiment) Process(ctx context.Context) error {
	if e.model == nil {
		if err := e.Load(); err != nil {
			return err
		}
	}

	f, err := os.Open(e.params.RecPath)
	if err != nil {
		return fmt.Errorf("opening REC file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat REC file: %w", err)
	}

	start := time.Now()
	asm := assembly.NewAssembler(e.model, e.params.Workers)
	arrays, asmWarns, err := asm.Assemble(ctx, f, info.Size())
	if err != nil {
		return fmt.Errorf("assembling %s: %w", e.params.RecPath, err)
	}
	e.collect(asmWarns)

	venc := e.model.Scan.Venc()
	for _, arr := range arrays {
		if err := rescale.Apply(arr, venc); err != nil {
			return fmt.Errorf("rescaling %s array: %w", arr.Type, err)
		}
	}

	e.arrays = arrays
	e.log.Info("reconstruction complete",
		slog.Int("arrays", len(arrays)),
		slog.Int("warnings", len(e.warnings)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Export writes the container file (and figures when configured) into the
// output directory and returns the container path.
func (e *Experiment) Export() (string, error) {
	if e.arrays == nil {
		return "", fmt.Errorf("experiment %s has not been processed", e.Name())
	}
	if err := os.MkdirAll(e.params.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(e.params.OutputDir, e.Name()+".prc")
	if err := container.Write(path, e.model, e.arrays); err != nil {
		return "", err
	}
	e.log.Info("container exported", slog.String("path", path))

	if e.params.SaveFigures {
		if err := e.saveFigures(); err != nil {
			return "", err
		}
	}
	return path, nil
}

// saveFigures renders one slice montage per array, plus a dynamics montage
// for arrays with a time series.
func (e *Experiment) saveFigures() error {
	for _, arr := range e.arrays {
		viewer := visualization.NewViewer(arr, e.params.Figures)

		img, err := viewer.SliceMontage(0)
		if err != nil {
			return fmt.Errorf("rendering %s slice montage: %w", arr.Type, err)
		}
		path := filepath.Join(e.params.OutputDir, fmt.Sprintf("%s_%s_slices.jpg", e.Name(), arr.Type))
		if err := visualization.SaveJPEG(img, path); err != nil {
			return fmt.Errorf("saving %s slice montage: %w", arr.Type, err)
		}

		if arr.Dims[4] > 1 {
			img, err := viewer.DynamicsMontage(0)
			if err != nil {
				return fmt.Errorf("rendering %s dynamics montage: %w", arr.Type, err)
			}
			path := filepath.Join(e.params.OutputDir, fmt.Sprintf("%s_%s_dynamics.jpg", e.Name(), arr.Type))
			if err := visualization.SaveJPEG(img, path); err != nil {
				return fmt.Errorf("saving %s dynamics montage: %w", arr.Type, err)
			}
		}
	}
	return nil
}

// Run executes the full pipeline: Load, Process, Export. Warnings do not
// stop the run; they are logged and kept for the caller.
func (e *Experiment) Run(ctx context.Context) (string, error) {
	if err := e.Process(ctx); err != nil {
		return "", err
	}
	for _, w := range e.warnings {
		e.log.Warn("reconstruction warning", slog.String("detail", w.Error()))
	}
	return e.Export()
}

func (e *Experiment) collect(warns []error) {
	e.warnings = append(e.warnings, warns...)
}
