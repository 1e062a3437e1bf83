package models

import (
	"image"
)

// SourceSlice is one 2D file that contributes a z layer when a directory of
// slices is stacked into a volume.
type SourceSlice struct {
	// Image is the decoded slice
	Image image.Image

	// Filename is the base name inside the input directory
	Filename string

	// Number is the numeric key parsed from the filename, used for ordering
	Number int

	// Layer is the z index assigned after sorting
	Layer int

	// Position is the physical z position of the layer in mm
	Position float64
}
