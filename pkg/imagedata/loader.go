package imagedata

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	"mprslice/internal/models"
	"mprslice/internal/monitoring"
)

// RawFormat selects the sample encoding of a headerless volume file.
type RawFormat int

const (
	RawUint8 RawFormat = iota
	RawUint16LE
	RawFloat64LE
)

// ParseRawFormat accepts the flag spellings uint8, uint16 and float64.
func ParseRawFormat(s string) (RawFormat, error) {
	switch strings.ToLower(s) {
	case "uint8", "u8", "":
		return RawUint8, nil
	case "uint16", "u16":
		return RawUint16LE, nil
	case "float64", "f64":
		return RawFloat64LE, nil
	}
	return 0, fmt.Errorf("unknown raw format %q", s)
}

func (f RawFormat) String() string {
	switch f {
	case RawUint8:
		return "uint8"
	case RawUint16LE:
		return "uint16"
	case RawFloat64LE:
		return "float64"
	}
	return "unknown"
}

var sliceExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true,
}

// LoadSliceDirectory stacks the 2D images of a directory into a volume. Files
// are ordered by the number embedded in their names and become consecutive z
// layers. Intensities are stored on a 0-255 scale.
func LoadSliceDirectory(dir string, spacing [3]float64) (*ImageData, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var slices []*models.SourceSlice
	for _, e := range entries {
		if e.IsDir() || !sliceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		slices = append(slices, &models.SourceSlice{
			Filename: e.Name(),
			Number:   extractNumber(e.Name()),
		})
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slice images found in %s", dir)
	}

	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Number != slices[j].Number {
			return slices[i].Number < slices[j].Number
		}
		return slices[i].Filename < slices[j].Filename
	})

	var width, height int
	for i, s := range slices {
		img, err := loadImage(filepath.Join(dir, s.Filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", s.Filename, err)
		}
		b := img.Bounds()
		if i == 0 {
			width, height = b.Dx(), b.Dy()
		} else if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", s.Filename, b.Dx(), b.Dy(), width, height)
		}
		s.Image = img
		s.Layer = i
		s.Position = float64(i) * spacing[2]
	}

	vol, err := New([6]int{0, width - 1, 0, height - 1, 0, len(slices) - 1}, spacing, [3]float64{})
	if err != nil {
		return nil, err
	}
	for _, s := range slices {
		b := s.Image.Bounds()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.SetValue(x, y, s.Layer, grayLevel(s.Image.At(b.Min.X+x, b.Min.Y+y)))
			}
		}
	}

	monitoring.Logf("Loaded %d slices with dimensions %dx%d from %s", len(slices), width, height, dir)
	monitoring.Logf("Slice positions: first %.2f mm, last %.2f mm", slices[0].Position, slices[len(slices)-1].Position)
	return vol, nil
}

// LoadRaw reads a headerless volume with x varying fastest.
func LoadRaw(path string, dims [3]int, spacing [3]float64, format RawFormat) (*ImageData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRaw(f, dims, spacing, format)
}

// ReadRaw decodes a headerless volume from r.
func ReadRaw(r io.Reader, dims [3]int, spacing [3]float64, format RawFormat) (*ImageData, error) {
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return nil, fmt.Errorf("%w: dimensions %v", ErrInvalidGeometry, dims)
	}
	vol, err := New([6]int{0, dims[0] - 1, 0, dims[1] - 1, 0, dims[2] - 1}, spacing, [3]float64{})
	if err != nil {
		return nil, err
	}

	n := vol.NumberOfPoints()
	switch format {
	case RawUint8:
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read raw volume: %w", err)
		}
		for i, b := range buf {
			vol.scalars[i] = float64(b)
		}
	case RawUint16LE:
		buf := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("failed to read raw volume: %w", err)
		}
		for i, v := range buf {
			vol.scalars[i] = float64(v)
		}
	case RawFloat64LE:
		if err := binary.Read(r, binary.LittleEndian, vol.scalars); err != nil {
			return nil, fmt.Errorf("failed to read raw volume: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported raw format %v", format)
	}
	return vol, nil
}

// Phantom builds a synthetic size^3 volume: a bright sphere centered in the
// grid over a background that ramps with z, so orientation is visible in
// every plane.
func Phantom(size int, spacing [3]float64) (*ImageData, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: phantom size %d", ErrInvalidGeometry, size)
	}
	vol, err := New([6]int{0, size - 1, 0, size - 1, 0, size - 1}, spacing, [3]float64{})
	if err != nil {
		return nil, err
	}
	c := float64(size-1) / 2
	radius := float64(size) / 3
	for z := 0; z < size; z++ {
		ramp := 100 * float64(z) / float64(size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				v := ramp
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < radius {
					v = 200
				}
				vol.SetValue(x, y, z, v)
			}
		}
	}
	return vol, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return 0
}

// loadImage decodes any registered image format.
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// grayLevel converts a color to luminance on a 0-255 scale, keeping 16-bit precision.
func grayLevel(c color.Color) float64 {
	g := color.Gray16Model.Convert(c).(color.Gray16)
	return float64(g.Y) / 257.0
}
