// Package reslice resamples an image volume on a grid positioned by a reslice
// axes matrix.
//
// The output grid lives in the coordinate frame of the axes: output index
// (i, j, k) maps to the world point axes * (origin + index*spacing). With
// output dimensionality 2 the grid is the plane z = 0 of that frame, i.e. the
// plane spanned by axes columns 0 and 1 through the point in column 3.
//
// Output spacing, origin and extent are derived from the input when not set:
// spacing is the input spacing weighted by each axes column, and the extent
// covers the input bounds mapped into the axes frame. This matches what most
// reslice implementations guess, and is exact for orthogonal planes.
package reslice

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"mprslice/pkg/imagedata"
	"mprslice/pkg/plane"
)

var (
	// ErrNoInput is returned by Output when no input volume was set.
	ErrNoInput = errors.New("reslice: no input data")

	// ErrSingularAxes is returned when the axes matrix cannot be inverted.
	ErrSingularAxes = errors.New("reslice: singular reslice axes")
)

// Interpolation selects how samples between voxel centers are computed.
type Interpolation int

const (
	Nearest Interpolation = iota
	Linear
)

// ParseInterpolation accepts "nearest" or "linear".
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "nearest", "":
		return Nearest, nil
	case "linear", "trilinear":
		return Linear, nil
	}
	return 0, fmt.Errorf("unknown interpolation %q", s)
}

func (m Interpolation) String() string {
	if m == Linear {
		return "linear"
	}
	return "nearest"
}

// DefaultBackground is the level written where the plane leaves the volume.
const DefaultBackground = 255.0

// Reslicer resamples an input volume through reslice axes.
type Reslicer struct {
	input          *imagedata.ImageData
	axes           plane.Axes
	dimensionality int
	background     float64
	interpolation  Interpolation
	numWorkers     int

	// optional overrides of the derived output geometry
	outputSpacing *[3]float64
	outputOrigin  *[3]float64
	outputExtent  *[6]int
}

// New creates a reslicer for input with identity axes, 3D output and the
// default background.
func New(input *imagedata.ImageData) *Reslicer {
	return &Reslicer{
		input:          input,
		axes:           plane.Identity(),
		dimensionality: 3,
		background:     DefaultBackground,
		numWorkers:     runtime.NumCPU(),
	}
}

// SetInputData replaces the input volume.
func (r *Reslicer) SetInputData(input *imagedata.ImageData) *Reslicer {
	r.input = input
	return r
}

// SetResliceAxes sets the transform from output grid coordinates to input world coordinates.
func (r *Reslicer) SetResliceAxes(axes plane.Axes) *Reslicer {
	r.axes = axes
	return r
}

// ResliceAxes returns the current axes.
func (r *Reslicer) ResliceAxes() plane.Axes { return r.axes }

// SetOutputDimensionality sets 2 for a single slice or 3 for a volume. Values
// outside 1..3 are clamped.
func (r *Reslicer) SetOutputDimensionality(n int) *Reslicer {
	if n < 1 {
		n = 1
	}
	if n > 3 {
		n = 3
	}
	r.dimensionality = n
	return r
}

// SetBackgroundColor takes an RGBA background. Only the first component is
// used since the volumes carry a single scalar per voxel.
func (r *Reslicer) SetBackgroundColor(c [4]float64) *Reslicer {
	r.background = c[0]
	return r
}

// SetBackgroundLevel sets the scalar written outside the input.
func (r *Reslicer) SetBackgroundLevel(v float64) *Reslicer {
	r.background = v
	return r
}

// SetInterpolation selects nearest or linear sampling.
func (r *Reslicer) SetInterpolation(m Interpolation) *Reslicer {
	r.interpolation = m
	return r
}

// SetNumWorkers bounds the goroutines used for sampling. Values below 1 mean one.
func (r *Reslicer) SetNumWorkers(n int) *Reslicer {
	if n < 1 {
		n = 1
	}
	r.numWorkers = n
	return r
}

// SetOutputSpacing overrides the derived output spacing.
func (r *Reslicer) SetOutputSpacing(s [3]float64) *Reslicer {
	r.outputSpacing = &s
	return r
}

// SetOutputOrigin overrides the derived output origin.
func (r *Reslicer) SetOutputOrigin(o [3]float64) *Reslicer {
	r.outputOrigin = &o
	return r
}

// SetOutputExtent overrides the derived output extent.
func (r *Reslicer) SetOutputExtent(e [6]int) *Reslicer {
	r.outputExtent = &e
	return r
}

// Output resamples the input and returns the new image data. The output
// origin and spacing are expressed in the axes frame, not in world space.
func (r *Reslicer) Output() (*imagedata.ImageData, error) {
	if r.input == nil {
		return nil, ErrNoInput
	}
	if len(r.input.Scalars()) == 0 {
		return nil, fmt.Errorf("%w: input has no scalars", ErrNoInput)
	}
	if err := r.input.Validate(); err != nil {
		return nil, fmt.Errorf("reslice input: %w", err)
	}

	spacing, origin, extent, err := r.outputGeometry()
	if err != nil {
		return nil, err
	}
	out, err := imagedata.New(extent, spacing, origin)
	if err != nil {
		return nil, fmt.Errorf("reslice output: %w", err)
	}

	r.sample(out)
	return out, nil
}

// outputGeometry resolves spacing, origin and extent, deriving whatever was not set.
func (r *Reslicer) outputGeometry() ([3]float64, [3]float64, [6]int, error) {
	var spacing, origin [3]float64
	var extent [6]int

	if r.outputSpacing != nil {
		spacing = *r.outputSpacing
	} else {
		spacing = r.derivedSpacing()
	}

	inv, err := r.axes.Inverse()
	if err != nil {
		return spacing, origin, extent, fmt.Errorf("%w: %v", ErrSingularAxes, err)
	}
	bounds := r.boundsInAxesFrame(inv)

	for i := 0; i < 3; i++ {
		if r.outputOrigin != nil {
			origin[i] = r.outputOrigin[i]
		} else {
			origin[i] = bounds[2*i]
		}
		if r.outputExtent != nil {
			extent[2*i], extent[2*i+1] = r.outputExtent[2*i], r.outputExtent[2*i+1]
		} else {
			span := (bounds[2*i+1] - origin[i]) / spacing[i]
			extent[2*i], extent[2*i+1] = 0, int(math.Floor(span+0.5))
			if extent[2*i+1] < 0 {
				extent[2*i+1] = 0
			}
		}
	}

	// Collapse the trailing axes for lower dimensional output. The slice is
	// taken at z = 0 of the axes frame, which is the plane through column 3.
	for i := r.dimensionality; i < 3; i++ {
		if r.outputOrigin == nil {
			origin[i] = 0
		}
		if r.outputExtent == nil {
			extent[2*i], extent[2*i+1] = 0, 0
		}
	}
	return spacing, origin, extent, nil
}

// derivedSpacing weights the input spacing by each axes column:
// s_i = sum_j a_ji^2 |in_j| / sum_j a_ji^2.
func (r *Reslicer) derivedSpacing() [3]float64 {
	in := r.input.Spacing()
	var out [3]float64
	for i := 0; i < 3; i++ {
		col := r.axes.Column(i)
		var s, n float64
		for j, a := range [3]float64{col.X, col.Y, col.Z} {
			s += a * a * math.Abs(in[j])
			n += a * a
		}
		if n == 0 {
			out[i] = math.Abs(in[i])
			continue
		}
		out[i] = s / n
	}
	return out
}

// boundsInAxesFrame maps the eight corners of the input bounds through inv
// and returns their axis-aligned box.
func (r *Reslicer) boundsInAxesFrame(inv plane.Axes) [6]float64 {
	b := r.input.Bounds()
	out := [6]float64{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for c := 0; c < 8; c++ {
		corner := r3.Vec{X: b[c&1], Y: b[2+(c>>1)&1], Z: b[4+(c>>2)&1]}
		p := inv.TransformPoint(corner)
		for i, v := range [3]float64{p.X, p.Y, p.Z} {
			out[2*i] = math.Min(out[2*i], v)
			out[2*i+1] = math.Max(out[2*i+1], v)
		}
	}
	return out
}

// sample fills out row by row, fanning rows across the worker group.
func (r *Reslicer) sample(out *imagedata.ImageData) {
	ext := out.Extent()
	spacing := out.Spacing()
	origin := out.Origin()

	type row struct{ j, k int }
	rows := make(chan row)

	workers := r.numWorkers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rw := range rows {
				y := origin[1] + float64(rw.j)*spacing[1]
				z := origin[2] + float64(rw.k)*spacing[2]
				for i := ext[0]; i <= ext[1]; i++ {
					x := origin[0] + float64(i)*spacing[0]
					world := r.axes.TransformPoint(r3.Vec{X: x, Y: y, Z: z})
					out.SetValue(i, rw.j, rw.k, r.valueAt(world))
				}
			}
		}()
	}

	for k := ext[4]; k <= ext[5]; k++ {
		for j := ext[2]; j <= ext[3]; j++ {
			rows <- row{j, k}
		}
	}
	close(rows)
	wg.Wait()
}

func (r *Reslicer) valueAt(world r3.Vec) float64 {
	idx := r.input.ContinuousIndex(world)
	var v float64
	var ok bool
	switch r.interpolation {
	case Linear:
		v, ok = r.input.SampleLinear(idx)
	default:
		v, ok = r.input.SampleNearest(idx)
	}
	if !ok {
		return r.background
	}
	return v
}
