// Package plane defines the canonical cutting-plane orientations and the 4x4
// reslice axes matrix built from them.
//
// Axes are stored column-major, matching the layout the reslice step consumes:
//
//	ux, uy, uz, 0   column 0: row direction of the slice
//	vx, vy, vz, 0   column 1: column direction of the slice
//	wx, wy, wz, 0   column 2: plane normal
//	px, py, pz, 1   column 3: point the plane passes through
package plane

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Plane selects one of the fixed orientations.
type Plane int

const (
	Axial Plane = iota
	Coronal
	Sagittal
	Oblique
)

// ObliqueAngle is the tilt about X of the Oblique plane, in degrees.
const ObliqueAngle = 30.0

// Table entries are exact to the six decimals the basis was authored with.
const (
	cos30 = 0.866025
	sin30 = 0.5
)

var basis = [...]Axes{
	Axial: Identity(),
	Coronal: {
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	},
	Sagittal: {
		0, 1, 0, 0,
		0, 0, -1, 0,
		-1, 0, 0, 0,
		0, 0, 0, 1,
	},
	Oblique: {
		1, 0, 0, 0,
		0, cos30, sin30, 0,
		0, -sin30, cos30, 0,
		0, 0, 0, 1,
	},
}

var planeNames = [...]string{
	Axial:    "axial",
	Coronal:  "coronal",
	Sagittal: "sagittal",
	Oblique:  "oblique",
}

// Planes lists every orientation in table order.
func Planes() []Plane {
	return []Plane{Axial, Coronal, Sagittal, Oblique}
}

// Valid reports whether p indexes the table.
func (p Plane) Valid() bool {
	return p >= Axial && p <= Oblique
}

func (p Plane) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Plane(%d)", int(p))
	}
	return planeNames[p]
}

// Basis returns a copy of the table entry for p. The translation column is zero.
func (p Plane) Basis() (Axes, bool) {
	if !p.Valid() {
		return Axes{}, false
	}
	return basis[p], true
}

// Parse accepts a plane name or its table index.
func Parse(s string) (Plane, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range planeNames {
		if s == name || s == fmt.Sprint(i) {
			return Plane(i), nil
		}
	}
	return 0, fmt.Errorf("unknown plane %q", s)
}

// Axes is a 4x4 homogeneous transform in column-major order.
type Axes [16]float64

// Identity returns the identity transform.
func Identity() Axes {
	return Axes{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row i, column j.
func (a Axes) At(i, j int) float64 { return a[4*j+i] }

// Column returns the first three components of column j.
func (a Axes) Column(j int) r3.Vec {
	return r3.Vec{X: a[4*j], Y: a[4*j+1], Z: a[4*j+2]}
}

// SetColumn overwrites the first three components of column j.
func (a *Axes) SetColumn(j int, v r3.Vec) {
	a[4*j], a[4*j+1], a[4*j+2] = v.X, v.Y, v.Z
}

// Row returns the in-plane row direction (column 0).
func (a Axes) Row() r3.Vec { return a.Column(0) }

// Col returns the in-plane column direction (column 1).
func (a Axes) Col() r3.Vec { return a.Column(1) }

// Normal returns the plane normal (column 2).
func (a Axes) Normal() r3.Vec { return a.Column(2) }

// Origin returns the translation (column 3, offsets 12..14).
func (a Axes) Origin() r3.Vec { return a.Column(3) }

// SetOrigin writes the translation column.
func (a *Axes) SetOrigin(p r3.Vec) { a.SetColumn(3, p) }

// Rotation returns the upper-left 3x3 block in column-major order.
func (a Axes) Rotation() [9]float64 {
	return [9]float64{a[0], a[1], a[2], a[4], a[5], a[6], a[8], a[9], a[10]}
}

// Dense returns the transform as a row-major gonum matrix.
func (a Axes) Dense() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, a.At(i, j))
		}
	}
	return m
}

// FromDense reads a 4x4 gonum matrix back into column-major Axes.
func FromDense(m mat.Matrix) (Axes, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return Axes{}, fmt.Errorf("axes must be 4x4, got %dx%d", r, c)
	}
	var a Axes
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[4*j+i] = m.At(i, j)
		}
	}
	return a, nil
}

// Inverse returns the inverse transform.
func (a Axes) Inverse() (Axes, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.Dense()); err != nil {
		return Axes{}, err
	}
	return FromDense(&inv)
}

// TransformPoint applies the full transform to p (w = 1).
func (a Axes) TransformPoint(p r3.Vec) r3.Vec {
	return r3.Add(a.TransformVector(p), a.Origin())
}

// TransformVector applies only the 3x3 block to v.
func (a Axes) TransformVector(v r3.Vec) r3.Vec {
	return r3.Add(r3.Add(r3.Scale(v.X, a.Row()), r3.Scale(v.Y, a.Col())), r3.Scale(v.Z, a.Normal()))
}

// RotateAboutRow turns the basis by degrees about its own row direction
// (column 0). The row direction and translation are unchanged.
func (a Axes) RotateAboutRow(degrees float64) Axes {
	if degrees == 0 {
		return a
	}
	axis := r3.Unit(a.Row())
	half := degrees * math.Pi / 360
	s := math.Sin(half)
	q := quat.Number{Real: math.Cos(half), Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}

	rotate := func(v r3.Vec) r3.Vec {
		p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
		return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
	}
	out := a
	out.SetColumn(1, rotate(a.Col()))
	out.SetColumn(2, rotate(a.Normal()))
	return out
}
