// Package mpr builds multi-planar reformat slices: it positions one of the
// fixed cutting planes at the center of a volume, resamples the volume on it
// and reports the slice's DICOM image plane geometry.
package mpr

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"mprslice/internal/monitoring"
	"mprslice/pkg/imagedata"
	"mprslice/pkg/plane"
	"mprslice/pkg/reslice"
)

// ErrInvalidPlane is returned for a plane outside the orientation table.
var ErrInvalidPlane = errors.New("invalid plane")

// Result is a resliced 2D image and its metadata.
type Result struct {
	Slice    *imagedata.ImageData `json:"-" yaml:"-"`
	Axes     plane.Axes           `json:"axes" yaml:"axes"`
	Rotation float64              `json:"rotation" yaml:"rotation"`
	MetaData MetaData             `json:"metaData" yaml:"metaData"`
}

// BuildResliceAxes positions the plane selected by opts in vol.
//
// The volume origin is reset to (0,0,0) first, on the caller's volume, and
// stays reset even when an error is returned. The translation column is the
// volume center plus the SliceDelta offset; the 3x3 block is the table entry
// unless opts.ApplyRotation is set.
func BuildResliceAxes(vol *imagedata.ImageData, opts Options) (plane.Axes, error) {
	if vol == nil {
		return plane.Axes{}, fmt.Errorf("build reslice axes: %w", reslice.ErrNoInput)
	}
	vol.SetOrigin(0, 0, 0)
	monitoring.Logf("origin: %v", vol.Origin())

	if err := vol.Validate(); err != nil {
		return plane.Axes{}, fmt.Errorf("build reslice axes: %w", err)
	}
	if math.IsNaN(opts.SliceDelta) || math.IsInf(opts.SliceDelta, 0) {
		return plane.Axes{}, fmt.Errorf("build reslice axes: slice delta is %v", opts.SliceDelta)
	}

	axes, ok := opts.Plane.Basis()
	if !ok {
		return plane.Axes{}, fmt.Errorf("%w: %d", ErrInvalidPlane, int(opts.Plane))
	}
	if opts.ApplyRotation {
		axes = axes.RotateAboutRow(opts.Rotation)
	}

	center := vol.Center()
	offset := sliceOffset(vol.Spacing(), axes.Normal(), opts)
	monitoring.Logf("sliceDelta: %v (%s) -> offset %v", opts.SliceDelta, opts.OffsetMode, offset)

	axes.SetOrigin(r3.Add(center, offset))
	monitoring.Logf("axes: %v", axes)
	return axes, nil
}

// sliceOffset is the displacement from the volume center for opts.SliceDelta.
func sliceOffset(spacing [3]float64, normal r3.Vec, opts Options) r3.Vec {
	d := opts.SliceDelta
	if opts.OffsetMode == OffsetAlongNormal {
		step := math.Abs(normal.X)*spacing[0] + math.Abs(normal.Y)*spacing[1] + math.Abs(normal.Z)*spacing[2]
		return r3.Scale(d*step, normal)
	}
	return r3.Vec{X: d * spacing[0], Y: d * spacing[1], Z: d * spacing[2]}
}

// Reslice resamples vol on the plane given by axes as a single 2D slice.
func Reslice(vol *imagedata.ImageData, axes plane.Axes, opts Options) (*imagedata.ImageData, error) {
	out, err := reslice.New(vol).
		SetOutputDimensionality(2).
		SetBackgroundColor(opts.background()).
		SetInterpolation(opts.Interpolation).
		SetNumWorkers(opts.numWorkers()).
		SetResliceAxes(axes).
		Output()
	if err != nil {
		return nil, fmt.Errorf("reslice: %w", err)
	}
	monitoring.Logf("output slice: %v", out)
	return out, nil
}

// CreateSlice builds the reslice axes for opts, resamples vol on them and
// packages the image plane metadata. vol's origin is reset to zero.
func CreateSlice(vol *imagedata.ImageData, opts Options) (*Result, error) {
	axes, err := BuildResliceAxes(vol, opts)
	if err != nil {
		return nil, err
	}

	out, err := Reslice(vol, axes, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Slice:    out,
		Axes:     axes,
		Rotation: opts.Rotation,
		MetaData: MetaData{
			ImagePlaneModule: NewImagePlaneModule(axes, out.Spacing(), opts.frameOfReferenceUID()),
		},
	}
	monitoring.Logf("result: %s %+v", opts.Plane, res.MetaData.ImagePlaneModule)
	return res, nil
}
