package imagedata

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the intensity distribution of an image.
type Stats struct {
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stdDev" yaml:"stdDev"`
}

// Stats computes min, max, mean and standard deviation of the scalars.
// An empty image yields the zero Stats.
func (img *ImageData) Stats() Stats {
	if len(img.scalars) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(img.scalars, nil)
	if len(img.scalars) == 1 {
		std = 0
	}
	return Stats{
		Min:    floats.Min(img.scalars),
		Max:    floats.Max(img.scalars),
		Mean:   mean,
		StdDev: std,
	}
}
