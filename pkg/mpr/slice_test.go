package mpr

import (
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"mprslice/internal/monitoring"
	"mprslice/pkg/imagedata"
	"mprslice/pkg/plane"
	"mprslice/pkg/reslice"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// newVolume returns a volume with a non-zero origin, so the reset is observable,
// and value x + 10*y + 100*z.
func newVolume(t *testing.T, extent [6]int, spacing [3]float64) *imagedata.ImageData {
	t.Helper()
	vol, err := imagedata.New(extent, spacing, [3]float64{-12.5, 40, 7})
	require.NoError(t, err)
	for k := extent[4]; k <= extent[5]; k++ {
		for j := extent[2]; j <= extent[3]; j++ {
			for i := extent[0]; i <= extent[1]; i++ {
				vol.SetValue(i, j, k, float64(i+10*j+100*k))
			}
		}
	}
	return vol
}

func TestBuildResliceAxesCenter(t *testing.T) {
	vol := newVolume(t, [6]int{0, 9, 2, 9, 0, 4}, [3]float64{0.5, 1.5, 3})

	axes, err := BuildResliceAxes(vol, Options{})
	require.NoError(t, err)

	// origin is zeroed before the center is read: 0.5*spacing*(min+max)
	want := r3.Vec{X: 0.5 * 0.5 * 9, Y: 1.5 * 0.5 * 11, Z: 3 * 0.5 * 4}
	assert.Equal(t, want, axes.Origin())
	assert.Equal(t, [3]float64{}, vol.Origin())
}

func TestBuildResliceAxesSliceDelta(t *testing.T) {
	spacing := [3]float64{0.5, 1.5, 3}
	for _, p := range plane.Planes() {
		for _, d := range []float64{-3, 0.5, 2} {
			vol := newVolume(t, [6]int{0, 9, 0, 9, 0, 4}, spacing)
			center := vol.Center()
			center = r3.Sub(center, r3.Vec{X: -12.5, Y: 40, Z: 7})

			axes, err := BuildResliceAxes(vol, Options{Plane: p, SliceDelta: d})
			require.NoError(t, err)

			// every axis moves, whatever the plane normal
			want := r3.Vec{X: center.X + d*spacing[0], Y: center.Y + d*spacing[1], Z: center.Z + d*spacing[2]}
			got := axes.Origin()
			assert.InDelta(t, want.X, got.X, 1e-12, "%s delta %v", p, d)
			assert.InDelta(t, want.Y, got.Y, 1e-12, "%s delta %v", p, d)
			assert.InDelta(t, want.Z, got.Z, 1e-12, "%s delta %v", p, d)
		}
	}
}

func TestBuildResliceAxesKeepsBasis(t *testing.T) {
	for _, p := range plane.Planes() {
		t.Run(p.String(), func(t *testing.T) {
			vol := newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})
			// rotation is carried but not applied
			axes, err := BuildResliceAxes(vol, Options{Plane: p, SliceDelta: 1, Rotation: 45})
			require.NoError(t, err)

			table, _ := p.Basis()
			assert.Equal(t, table.Rotation(), axes.Rotation())
			assert.Equal(t, table[3], axes[3])
			assert.Equal(t, table[7], axes[7])
			assert.Equal(t, table[11], axes[11])
			assert.Equal(t, 1.0, axes[15])
		})
	}
}

func TestBuildResliceAxesApplyRotation(t *testing.T) {
	vol := newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})

	axes, err := BuildResliceAxes(vol, Options{Plane: plane.Axial, Rotation: plane.ObliqueAngle, ApplyRotation: true})
	require.NoError(t, err)

	oblique, _ := plane.Oblique.Basis()
	got, want := axes.Rotation(), oblique.Rotation()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "element %d", i)
	}
}

func TestBuildResliceAxesOffsetAlongNormal(t *testing.T) {
	spacing := [3]float64{0.5, 1.5, 3}
	tests := []struct {
		plane plane.Plane
		shift r3.Vec
	}{
		{plane.Axial, r3.Vec{Z: 2 * 3}},
		{plane.Coronal, r3.Vec{Y: 2 * 1.5}},
		{plane.Sagittal, r3.Vec{X: -2 * 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.plane.String(), func(t *testing.T) {
			vol := newVolume(t, [6]int{0, 9, 0, 9, 0, 4}, spacing)
			base, err := BuildResliceAxes(vol, Options{Plane: tt.plane})
			require.NoError(t, err)

			axes, err := BuildResliceAxes(vol, Options{Plane: tt.plane, SliceDelta: 2, OffsetMode: OffsetAlongNormal})
			require.NoError(t, err)
			assert.Equal(t, r3.Add(base.Origin(), tt.shift), axes.Origin())
		})
	}

	vol := newVolume(t, [6]int{0, 9, 0, 9, 0, 4}, spacing)
	base, err := BuildResliceAxes(vol, Options{Plane: plane.Oblique})
	require.NoError(t, err)
	axes, err := BuildResliceAxes(vol, Options{Plane: plane.Oblique, SliceDelta: 1, OffsetMode: OffsetAlongNormal})
	require.NoError(t, err)
	moved := r3.Sub(axes.Origin(), base.Origin())
	// no in-plane component
	assert.InDelta(t, 0, r3.Dot(moved, base.Row()), 1e-12)
	assert.InDelta(t, 0, r3.Dot(moved, base.Col()), 1e-12)
}

func TestBuildResliceAxesErrorsStillResetOrigin(t *testing.T) {
	vol := newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})
	_, err := BuildResliceAxes(vol, Options{Plane: plane.Plane(4)})
	assert.ErrorIs(t, err, ErrInvalidPlane)
	assert.Equal(t, [3]float64{}, vol.Origin())

	vol = newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})
	vol.SetSpacing(1, math.NaN(), 1)
	_, err = BuildResliceAxes(vol, Options{})
	assert.ErrorIs(t, err, imagedata.ErrInvalidGeometry)
	assert.Equal(t, [3]float64{}, vol.Origin())

	vol = newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})
	_, err = BuildResliceAxes(vol, Options{SliceDelta: math.Inf(1)})
	assert.Error(t, err)
	assert.Equal(t, [3]float64{}, vol.Origin())

	_, err = BuildResliceAxes(nil, Options{})
	assert.ErrorIs(t, err, reslice.ErrNoInput)
}

func TestCreateSliceMetadata(t *testing.T) {
	for _, p := range plane.Planes() {
		t.Run(p.String(), func(t *testing.T) {
			vol := newVolume(t, [6]int{0, 7, 0, 5, 0, 3}, [3]float64{0.8, 1.2, 2.5})

			res, err := CreateSlice(vol, Options{Plane: p, SliceDelta: 1})
			require.NoError(t, err)

			a := res.Axes
			sp := res.Slice.Spacing()
			want := ImagePlaneModule{
				ImagePositionPatient: [3]float64{a[12], a[13], a[14]},
				RowCosines:           [3]float64{a[0], a[1], a[2]},
				ColumnCosines:        [3]float64{a[4], a[5], a[6]},
				RowPixelSpacing:      sp[1],
				ColumnPixelSpacing:   sp[0],
				FrameOfReferenceUID:  PlaceholderFrameOfReferenceUID,
			}
			if diff := cmp.Diff(want, res.MetaData.ImagePlaneModule); diff != "" {
				t.Errorf("image plane module mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, [3]float64{}, vol.Origin())
			assert.Equal(t, 0, res.Slice.Extent()[4])
			assert.Equal(t, 0, res.Slice.Extent()[5])
		})
	}
}

func TestCreateSliceAxialPixels(t *testing.T) {
	vol := newVolume(t, [6]int{0, 7, 0, 5, 0, 4}, [3]float64{1, 1, 1})

	// center z is 2; delta 1 lands on layer 3
	res, err := CreateSlice(vol, Options{SliceDelta: 1, NumWorkers: 2})
	require.NoError(t, err)

	img := res.Slice
	require.Equal(t, [3]int{8, 6, 1}, img.Dimensions())
	for j := 0; j < 6; j++ {
		for i := 0; i < 8; i++ {
			assert.Equal(t, vol.Value(i, j, 3), img.Value(i, j, 0))
		}
	}
	assert.Equal(t, 1.0, res.MetaData.ImagePlaneModule.RowPixelSpacing)
	assert.Equal(t, [6]float64{1, 0, 0, 0, 1, 0}, res.MetaData.ImagePlaneModule.ImageOrientationPatient())
}

func TestCreateSliceBackground(t *testing.T) {
	vol := newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})

	// far past the last layer: only background remains
	res, err := CreateSlice(vol, Options{SliceDelta: 50})
	require.NoError(t, err)
	for _, v := range res.Slice.Scalars() {
		assert.Equal(t, 255.0, v)
	}

	black := [4]float64{0, 0, 0, 255}
	res, err = CreateSlice(vol, Options{SliceDelta: 50, Background: &black, Interpolation: reslice.Linear})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Slice.Scalars()[0])
}

func TestCreateSliceFrameOfReference(t *testing.T) {
	vol := newVolume(t, [6]int{0, 3, 0, 3, 0, 3}, [3]float64{1, 1, 1})
	uid := NewFrameOfReferenceUID()

	res, err := CreateSlice(vol, Options{Plane: plane.Coronal, FrameOfReferenceUID: uid, Rotation: 12})
	require.NoError(t, err)
	assert.Equal(t, uid, res.MetaData.ImagePlaneModule.FrameOfReferenceUID)
	assert.Equal(t, 12.0, res.Rotation)
}

func TestUIDFromUUID(t *testing.T) {
	assert.Equal(t, "2.25.1", UIDFromUUID(uuid.MustParse("00000000-0000-0000-0000-000000000001")))
	assert.Equal(t, "2.25.340282366920938463463374607431768211455",
		UIDFromUUID(uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")))

	uid := NewFrameOfReferenceUID()
	assert.True(t, strings.HasPrefix(uid, "2.25."))
	assert.LessOrEqual(t, len(uid), 64)
	assert.NotEqual(t, uid, NewFrameOfReferenceUID())
}

func TestParseOffsetMode(t *testing.T) {
	for _, m := range []OffsetMode{OffsetAllAxes, OffsetAlongNormal} {
		got, err := ParseOffsetMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseOffsetMode("diagonal")
	assert.Error(t, err)
}
