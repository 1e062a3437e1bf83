package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"mprslice/pkg/imagedata"
)

// Window maps intensities in [Low, High] to the full display range.
// A window with High <= Low is resolved from the image statistics.
type Window struct {
	Low, High float64
}

// DefaultWindow covers the 0-255 intensity scale the loaders produce.
var DefaultWindow = Window{Low: 0, High: 255}

// Viewer extracts and saves 2D views of a volume.
type Viewer struct {
	volume *imagedata.ImageData
	window Window

	// JPEGQuality is used when saving .jpg files
	JPEGQuality int
}

// NewViewer creates a viewer over vol with the default window.
func NewViewer(vol *imagedata.ImageData) *Viewer {
	return &Viewer{
		volume:      vol,
		window:      DefaultWindow,
		JPEGQuality: 90,
	}
}

// SetWindow sets the display window used by Render and ExtractSlice.
func (v *Viewer) SetWindow(w Window) {
	v.window = w
}

// ExtractLayer copies one orthogonal layer of the volume. Axis "z" yields an
// (x, y) image, "y" yields (x, z) and "x" yields (z, y).
func (v *Viewer) ExtractLayer(axis string, position int) (*imagedata.ImageData, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	ext := v.volume.Extent()
	dims := v.volume.Dimensions()
	sp := v.volume.Spacing()

	var w, h int
	var at func(a, b int) float64
	var spacing [3]float64

	switch strings.ToLower(axis) {
	case "x":
		if position >= dims[0] {
			return nil, fmt.Errorf("position %d exceeds width %d", position, dims[0])
		}
		w, h = dims[2], dims[1]
		spacing = [3]float64{sp[2], sp[1], sp[0]}
		at = func(a, b int) float64 { return v.volume.Value(ext[0]+position, ext[2]+b, ext[4]+a) }
	case "y":
		if position >= dims[1] {
			return nil, fmt.Errorf("position %d exceeds height %d", position, dims[1])
		}
		w, h = dims[0], dims[2]
		spacing = [3]float64{sp[0], sp[2], sp[1]}
		at = func(a, b int) float64 { return v.volume.Value(ext[0]+a, ext[2]+position, ext[4]+b) }
	case "z":
		if position >= dims[2] {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, dims[2])
		}
		w, h = dims[0], dims[1]
		spacing = sp
		at = func(a, b int) float64 { return v.volume.Value(ext[0]+a, ext[2]+b, ext[4]+position) }
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	layer, err := imagedata.New([6]int{0, w - 1, 0, h - 1, 0, 0}, spacing, [3]float64{})
	if err != nil {
		return nil, err
	}
	for b := 0; b < h; b++ {
		for a := 0; a < w; a++ {
			layer.SetValue(a, b, 0, at(a, b))
		}
	}
	return layer, nil
}

// ExtractSlice renders one orthogonal layer of the volume.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	layer, err := v.ExtractLayer(axis, position)
	if err != nil {
		return nil, err
	}
	return v.Render(layer), nil
}

// Render converts the first z layer of img to 16-bit gray through the window.
func (v *Viewer) Render(img *imagedata.ImageData) *image.Gray16 {
	w := v.window
	if w.High <= w.Low {
		s := img.Stats()
		w = Window{Low: s.Min, High: s.Max}
	}
	span := w.High - w.Low
	if span <= 0 {
		span = 1
	}

	ext := img.Extent()
	dims := img.Dimensions()
	out := image.NewGray16(image.Rect(0, 0, dims[0], dims[1]))
	for y := 0; y < dims[1]; y++ {
		for x := 0; x < dims[0]; x++ {
			t := (img.Value(ext[0]+x, ext[2]+y, ext[4]) - w.Low) / span
			value := uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))
			out.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return out
}

// SquarePixels rescales img so one pixel covers the same physical distance in
// both directions. The finer spacing is kept.
func SquarePixels(img image.Image, columnSpacing, rowSpacing float64) image.Image {
	if columnSpacing <= 0 || rowSpacing <= 0 || columnSpacing == rowSpacing {
		return img
	}
	b := img.Bounds()
	unit := math.Min(columnSpacing, rowSpacing)
	w := int(math.Round(float64(b.Dx()) * columnSpacing / unit))
	h := int(math.Round(float64(b.Dy()) * rowSpacing / unit))

	dst := image.NewGray16(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// SaveSlice writes img in the format named by the file extension: .jpg,
// .jpeg, .png, .tif or .tiff.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	var encode func(f *os.File) error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		encode = func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: v.JPEGQuality}) }
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".tif", ".tiff":
		encode = func(f *os.File) error { return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}) }
	default:
		return fmt.Errorf("unsupported image format %q", filepath.Ext(filename))
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := encode(file); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every layer along axis as
// slice_<axis>_<nnn>.<ext> in outputDir.
func (v *Viewer) SaveSliceSequence(axis, outputDir, ext string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	dims := v.volume.Dimensions()
	var maxPos int
	switch strings.ToLower(axis) {
	case "x":
		maxPos = dims[0]
	case "y":
		maxPos = dims[1]
	case "z":
		maxPos = dims[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d%s", axis, pos, ext))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
