// Package imagedata provides the regular-grid image container used for both
// input volumes and resliced 2D output.
//
// An ImageData is described by an origin, a per-axis spacing and an extent of
// six integers (min/max index per axis). Voxel k of a row is stored at
// (k-zmin)*nx*ny + (j-ymin)*nx + (i-xmin), x varying fastest.
package imagedata

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGeometry is returned when origin, spacing or extent cannot describe a grid.
var ErrInvalidGeometry = errors.New("invalid image geometry")

// sampleTolerance lets samples that land a hair outside the extent, as a
// result of floating point round-off in the transform, still hit the edge voxel.
const sampleTolerance = 1e-6

// ImageData is a 3D (or 2D, when one extent axis collapses) scalar image.
type ImageData struct {
	origin  [3]float64
	spacing [3]float64
	extent  [6]int
	scalars []float64
}

// New allocates zero-filled image data for the given extent, spacing and origin.
func New(extent [6]int, spacing, origin [3]float64) (*ImageData, error) {
	img := &ImageData{origin: origin, spacing: spacing, extent: extent}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	img.scalars = make([]float64, img.NumberOfPoints())
	return img, nil
}

// NewFromScalars wraps existing scalars. The slice is not copied.
func NewFromScalars(extent [6]int, spacing, origin [3]float64, scalars []float64) (*ImageData, error) {
	img := &ImageData{origin: origin, spacing: spacing, extent: extent}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if len(scalars) != img.NumberOfPoints() {
		return nil, fmt.Errorf("%w: %d scalars for %d points", ErrInvalidGeometry, len(scalars), img.NumberOfPoints())
	}
	img.scalars = scalars
	return img, nil
}

// Origin returns the world position of index (0,0,0).
func (img *ImageData) Origin() [3]float64 { return img.origin }

// SetOrigin moves the image in world space without touching its samples.
func (img *ImageData) SetOrigin(x, y, z float64) {
	img.origin = [3]float64{x, y, z}
}

// Spacing returns the distance between samples along each axis.
func (img *ImageData) Spacing() [3]float64 { return img.spacing }

// SetSpacing replaces the sample spacing.
func (img *ImageData) SetSpacing(x, y, z float64) {
	img.spacing = [3]float64{x, y, z}
}

// Extent returns xmin, xmax, ymin, ymax, zmin, zmax.
func (img *ImageData) Extent() [6]int { return img.extent }

// Scalars returns the backing sample slice.
func (img *ImageData) Scalars() []float64 { return img.scalars }

// Dimensions returns the number of samples along each axis.
func (img *ImageData) Dimensions() [3]int {
	return [3]int{
		img.extent[1] - img.extent[0] + 1,
		img.extent[3] - img.extent[2] + 1,
		img.extent[5] - img.extent[4] + 1,
	}
}

// NumberOfPoints returns the total sample count of the extent.
func (img *ImageData) NumberOfPoints() int {
	d := img.Dimensions()
	if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 {
		return 0
	}
	return d[0] * d[1] * d[2]
}

// Validate reports ErrInvalidGeometry for non-finite origin, zero or
// non-finite spacing, or an extent with min > max.
func (img *ImageData) Validate() error {
	for i := 0; i < 3; i++ {
		if math.IsNaN(img.origin[i]) || math.IsInf(img.origin[i], 0) {
			return fmt.Errorf("%w: origin[%d] is %v", ErrInvalidGeometry, i, img.origin[i])
		}
		s := img.spacing[i]
		if math.IsNaN(s) || math.IsInf(s, 0) || s == 0 {
			return fmt.Errorf("%w: spacing[%d] is %v", ErrInvalidGeometry, i, s)
		}
		if img.extent[2*i] > img.extent[2*i+1] {
			return fmt.Errorf("%w: extent axis %d is [%d, %d]", ErrInvalidGeometry, i, img.extent[2*i], img.extent[2*i+1])
		}
	}
	return nil
}

// Index converts structured indices to an offset into Scalars.
func (img *ImageData) Index(i, j, k int) int {
	d := img.Dimensions()
	return (k-img.extent[4])*d[0]*d[1] + (j-img.extent[2])*d[0] + (i - img.extent[0])
}

// Contains reports whether the structured index lies inside the extent.
func (img *ImageData) Contains(i, j, k int) bool {
	return i >= img.extent[0] && i <= img.extent[1] &&
		j >= img.extent[2] && j <= img.extent[3] &&
		k >= img.extent[4] && k <= img.extent[5]
}

// Value returns the sample at a structured index. It panics outside the extent.
func (img *ImageData) Value(i, j, k int) float64 {
	return img.scalars[img.Index(i, j, k)]
}

// SetValue stores a sample at a structured index.
func (img *ImageData) SetValue(i, j, k int, v float64) {
	img.scalars[img.Index(i, j, k)] = v
}

// Bounds returns the world-space box covered by the sample points as
// xmin, xmax, ymin, ymax, zmin, zmax.
func (img *ImageData) Bounds() [6]float64 {
	var b [6]float64
	for i := 0; i < 3; i++ {
		lo := img.origin[i] + float64(img.extent[2*i])*img.spacing[i]
		hi := img.origin[i] + float64(img.extent[2*i+1])*img.spacing[i]
		if lo > hi {
			lo, hi = hi, lo
		}
		b[2*i], b[2*i+1] = lo, hi
	}
	return b
}

// Center returns origin + 0.5*spacing*(min+max) per axis.
func (img *ImageData) Center() r3.Vec {
	c := func(axis int) float64 {
		return img.origin[axis] + img.spacing[axis]*0.5*float64(img.extent[2*axis]+img.extent[2*axis+1])
	}
	return r3.Vec{X: c(0), Y: c(1), Z: c(2)}
}

// ContinuousIndex maps a world point to fractional structured indices.
func (img *ImageData) ContinuousIndex(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: (p.X - img.origin[0]) / img.spacing[0],
		Y: (p.Y - img.origin[1]) / img.spacing[1],
		Z: (p.Z - img.origin[2]) / img.spacing[2],
	}
}

// SampleNearest returns the sample closest to a continuous index. ok is false
// when the index falls outside the extent.
func (img *ImageData) SampleNearest(idx r3.Vec) (v float64, ok bool) {
	var n [3]int
	for axis, x := range [3]float64{idx.X, idx.Y, idx.Z} {
		lo, hi := img.extent[2*axis], img.extent[2*axis+1]
		if x < float64(lo)-0.5-sampleTolerance || x > float64(hi)+0.5+sampleTolerance {
			return 0, false
		}
		i := int(math.Floor(x + 0.5))
		if i < lo {
			i = lo
		}
		if i > hi {
			i = hi
		}
		n[axis] = i
	}
	return img.Value(n[0], n[1], n[2]), true
}

// SampleLinear trilinearly interpolates at a continuous index. ok is false when
// the index falls outside the extent.
func (img *ImageData) SampleLinear(idx r3.Vec) (v float64, ok bool) {
	var lo, hi [3]int
	var f [3]float64
	for axis, x := range [3]float64{idx.X, idx.Y, idx.Z} {
		lo[axis], hi[axis], f[axis], ok = linearAxis(x, img.extent[2*axis], img.extent[2*axis+1])
		if !ok {
			return 0, false
		}
	}

	c000 := img.Value(lo[0], lo[1], lo[2])
	c100 := img.Value(hi[0], lo[1], lo[2])
	c010 := img.Value(lo[0], hi[1], lo[2])
	c110 := img.Value(hi[0], hi[1], lo[2])
	c001 := img.Value(lo[0], lo[1], hi[2])
	c101 := img.Value(hi[0], lo[1], hi[2])
	c011 := img.Value(lo[0], hi[1], hi[2])
	c111 := img.Value(hi[0], hi[1], hi[2])

	c00 := c000 + (c100-c000)*f[0]
	c10 := c010 + (c110-c010)*f[0]
	c01 := c001 + (c101-c001)*f[0]
	c11 := c011 + (c111-c011)*f[0]
	c0 := c00 + (c10-c00)*f[1]
	c1 := c01 + (c11-c01)*f[1]
	return c0 + (c1-c0)*f[2], true
}

func linearAxis(x float64, lo, hi int) (i0, i1 int, f float64, ok bool) {
	if x < float64(lo)-sampleTolerance || x > float64(hi)+sampleTolerance {
		return 0, 0, 0, false
	}
	fl := math.Floor(x)
	i0, f = int(fl), x-fl
	if i0 < lo {
		i0, f = lo, 0
	}
	if i0 >= hi {
		i0, f = hi, 0
	}
	i1 = i0 + 1
	if i1 > hi {
		i1 = hi
	}
	return i0, i1, f, true
}

// Clone returns a deep copy.
func (img *ImageData) Clone() *ImageData {
	c := *img
	c.scalars = append([]float64(nil), img.scalars...)
	return &c
}

// String summarizes the geometry for diagnostics.
func (img *ImageData) String() string {
	return fmt.Sprintf("ImageData{origin=%v spacing=%v extent=%v dims=%v}",
		img.origin, img.spacing, img.extent, img.Dimensions())
}
