package visualization

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mprslice/internal/monitoring"
	"mprslice/pkg/imagedata"
	"mprslice/pkg/mpr"
	"mprslice/pkg/plane"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// createTestVolume fills value = x + y + 10*z, which stays inside 0-255.
func createTestVolume(t *testing.T, width, height, depth int) *imagedata.ImageData {
	t.Helper()
	vol, err := imagedata.New([6]int{0, width - 1, 0, height - 1, 0, depth - 1}, [3]float64{1, 1, 2}, [3]float64{})
	require.NoError(t, err)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.SetValue(x, y, z, float64(x+y+10*z))
			}
		}
	}
	return vol
}

// TestExtractLayer verifies orthogonal layers have the expected shape and samples
func TestExtractLayer(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(createTestVolume(t, width, height, depth))

	z, err := viewer.ExtractLayer("z", 3)
	require.NoError(t, err)
	assert.Equal(t, [3]int{width, height, 1}, z.Dimensions())
	assert.Equal(t, float64(4+2+30), z.Value(4, 2, 0))

	y, err := viewer.ExtractLayer("y", 6)
	require.NoError(t, err)
	assert.Equal(t, [3]int{width, depth, 1}, y.Dimensions())
	assert.Equal(t, [3]float64{1, 2, 1}, y.Spacing())
	assert.Equal(t, float64(1+6+40), y.Value(1, 4, 0))

	x, err := viewer.ExtractLayer("X", 9)
	require.NoError(t, err)
	assert.Equal(t, [3]int{depth, height, 1}, x.Dimensions())
	assert.Equal(t, float64(9+7+20), x.Value(2, 7, 0))

	_, err = viewer.ExtractLayer("invalid", 0)
	assert.Error(t, err)
	_, err = viewer.ExtractLayer("z", depth)
	assert.Error(t, err)
	_, err = viewer.ExtractLayer("z", -1)
	assert.Error(t, err)
}

// TestAxialResliceMatchesLayer cross-checks the reslice path against a plain layer copy
func TestAxialResliceMatchesLayer(t *testing.T) {
	vol := createTestVolume(t, 10, 8, 5)
	viewer := NewViewer(vol)

	// center z index is 2, so delta d lands on layer 2+d
	for _, d := range []float64{-2, -1, 0, 1, 2} {
		res, err := mpr.CreateSlice(vol, mpr.Options{Plane: plane.Axial, SliceDelta: d})
		require.NoError(t, err)

		layer, err := viewer.ExtractLayer("z", 2+int(d))
		require.NoError(t, err)
		assert.Equal(t, layer.Scalars(), res.Slice.Scalars(), "delta %v", d)
	}
}

func TestRender(t *testing.T) {
	img, err := imagedata.NewFromScalars([6]int{0, 2, 0, 0, 0, 0}, [3]float64{1, 1, 1}, [3]float64{}, []float64{-10, 127.5, 300})
	require.NoError(t, err)

	viewer := NewViewer(createTestVolume(t, 2, 2, 2))
	g := viewer.Render(img)
	assert.Equal(t, uint16(0), g.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(32768), g.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(65535), g.Gray16At(2, 0).Y)

	// an empty window stretches to the image range
	viewer.SetWindow(Window{})
	g = viewer.Render(img)
	assert.Equal(t, uint16(0), g.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(65535), g.Gray16At(2, 0).Y)
}

func TestSquarePixels(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 10, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 10; x++ {
			src.SetGray16(x, y, color.Gray16{Y: 40000})
		}
	}

	out := SquarePixels(src, 1, 2.5)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	g, ok := out.(*image.Gray16)
	require.True(t, ok)
	assert.InDelta(t, 40000, int(g.Gray16At(5, 5).Y), 2)

	assert.Same(t, src, SquarePixels(src, 1.5, 1.5))
}

// TestSaveSlice verifies every supported format can be written and read back
func TestSaveSlice(t *testing.T) {
	viewer := NewViewer(createTestVolume(t, 6, 5, 3))
	img, err := viewer.ExtractSlice("z", 1)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, ext := range []string{".jpg", ".png", ".tif"} {
		name := filepath.Join(dir, "nested", "slice"+ext)
		require.NoError(t, viewer.SaveSlice(img, name), ext)

		f, err := os.Open(name)
		require.NoError(t, err)
		decoded, _, err := image.Decode(f)
		f.Close()
		require.NoError(t, err, ext)
		assert.Equal(t, img.Bounds(), decoded.Bounds(), ext)
	}

	assert.Error(t, viewer.SaveSlice(img, filepath.Join(dir, "slice.bmp")))
}

// TestSaveSliceSequence verifies that a sequence of slices is written per axis
func TestSaveSliceSequence(t *testing.T) {
	width, height, depth := 4, 3, 2
	viewer := NewViewer(createTestVolume(t, width, height, depth))
	dir := t.TempDir()

	for axis, count := range map[string]int{"x": width, "y": height, "z": depth} {
		axisDir := filepath.Join(dir, axis)
		require.NoError(t, viewer.SaveSliceSequence(axis, axisDir, ".png"))

		entries, err := os.ReadDir(axisDir)
		require.NoError(t, err)
		assert.Len(t, entries, count, axis)
		assert.FileExists(t, filepath.Join(axisDir, fmt.Sprintf("slice_%s_%03d.png", axis, count-1)))
	}

	assert.Error(t, viewer.SaveSliceSequence("w", dir, ".png"))
}
