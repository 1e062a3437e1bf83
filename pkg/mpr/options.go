package mpr

import (
	"fmt"
	"runtime"

	"mprslice/pkg/plane"
	"mprslice/pkg/reslice"
)

// OffsetMode controls how SliceDelta moves the plane away from the volume center.
type OffsetMode int

const (
	// OffsetAllAxes adds SliceDelta*spacing to every axis of the center,
	// whatever the plane orientation.
	OffsetAllAxes OffsetMode = iota

	// OffsetAlongNormal moves the center only along the plane normal, by
	// SliceDelta times the input spacing projected on that normal.
	OffsetAlongNormal
)

// ParseOffsetMode accepts "all-axes" or "normal".
func ParseOffsetMode(s string) (OffsetMode, error) {
	switch s {
	case "all-axes", "all", "":
		return OffsetAllAxes, nil
	case "normal", "along-normal":
		return OffsetAlongNormal, nil
	}
	return 0, fmt.Errorf("unknown offset mode %q", s)
}

func (m OffsetMode) String() string {
	if m == OffsetAlongNormal {
		return "normal"
	}
	return "all-axes"
}

// PlaceholderFrameOfReferenceUID is written when no frame of reference is configured.
const PlaceholderFrameOfReferenceUID = "THIS-CAN-BE-ALMOST-ANYTHING"

// Options selects the cutting plane. The zero value is an axial slice through
// the volume center.
type Options struct {
	// Plane indexes the fixed orientation table.
	Plane plane.Plane

	// Rotation in degrees. It is carried through to the result but only
	// applied to the basis when ApplyRotation is set.
	Rotation float64

	// ApplyRotation turns the basis about its row direction by Rotation.
	ApplyRotation bool

	// SliceDelta moves the plane from the center, in voxels.
	SliceDelta float64

	// OffsetMode decides which axes SliceDelta moves.
	OffsetMode OffsetMode

	// Interpolation used by the reslice step.
	Interpolation reslice.Interpolation

	// Background is the RGBA color written outside the volume. Nil means white.
	Background *[4]float64

	// NumWorkers bounds the reslice goroutines. Zero means runtime.NumCPU().
	NumWorkers int

	// FrameOfReferenceUID is copied into the metadata. Empty means the placeholder.
	FrameOfReferenceUID string
}

func (o Options) background() [4]float64 {
	if o.Background == nil {
		return [4]float64{255, 255, 255, 255}
	}
	return *o.Background
}

func (o Options) numWorkers() int {
	if o.NumWorkers <= 0 {
		return runtime.NumCPU()
	}
	return o.NumWorkers
}

func (o Options) frameOfReferenceUID() string {
	if o.FrameOfReferenceUID == "" {
		return PlaceholderFrameOfReferenceUID
	}
	return o.FrameOfReferenceUID
}
