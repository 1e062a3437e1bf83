package mpr

import (
	"math/big"

	"github.com/google/uuid"

	"mprslice/pkg/plane"
)

// ImagePlaneModule mirrors the DICOM image plane module attributes of a slice.
type ImagePlaneModule struct {
	ImagePositionPatient [3]float64 `json:"imagePositionPatient" yaml:"imagePositionPatient"`
	RowCosines           [3]float64 `json:"rowCosines" yaml:"rowCosines"`
	ColumnCosines        [3]float64 `json:"columnCosines" yaml:"columnCosines"`
	RowPixelSpacing      float64    `json:"rowPixelSpacing" yaml:"rowPixelSpacing"`
	ColumnPixelSpacing   float64    `json:"columnPixelSpacing" yaml:"columnPixelSpacing"`
	FrameOfReferenceUID  string     `json:"frameOfReferenceUID" yaml:"frameOfReferenceUID"`
}

// MetaData groups the per-slice metadata modules.
type MetaData struct {
	ImagePlaneModule ImagePlaneModule `json:"imagePlaneModule" yaml:"imagePlaneModule"`
}

// NewImagePlaneModule reads position and orientation straight out of the axes
// columns and pixel spacing out of the output spacing. Nothing is normalized.
func NewImagePlaneModule(axes plane.Axes, spacing [3]float64, frameOfReferenceUID string) ImagePlaneModule {
	return ImagePlaneModule{
		ImagePositionPatient: [3]float64{axes[12], axes[13], axes[14]},
		RowCosines:           [3]float64{axes[0], axes[1], axes[2]},
		ColumnCosines:        [3]float64{axes[4], axes[5], axes[6]},
		RowPixelSpacing:      spacing[1],
		ColumnPixelSpacing:   spacing[0],
		FrameOfReferenceUID:  frameOfReferenceUID,
	}
}

// ImageOrientationPatient returns row cosines followed by column cosines.
func (m ImagePlaneModule) ImageOrientationPatient() [6]float64 {
	r, c := m.RowCosines, m.ColumnCosines
	return [6]float64{r[0], r[1], r[2], c[0], c[1], c[2]}
}

// NewFrameOfReferenceUID returns a fresh UID under the 2.25 root, the UUID
// derived form DICOM allows without a registered organization root.
func NewFrameOfReferenceUID() string {
	return UIDFromUUID(uuid.New())
}

// UIDFromUUID renders u as "2.25." followed by its 128-bit value in decimal.
func UIDFromUUID(u uuid.UUID) string {
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}
