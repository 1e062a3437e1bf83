// Package config provides configuration loading and management for mprslice.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds the goroutines used to resample a slice
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Volume parameters used when the input carries no geometry of its own
	Volume struct {
		// Spacing is the voxel size in mm along x, y and z
		Spacing [3]float64 `yaml:"spacing"`

		// RawFormat is the sample encoding of headerless .raw volumes
		RawFormat string `yaml:"rawFormat"`

		// PhantomSize is the edge length of the synthetic volume
		PhantomSize int `yaml:"phantomSize"`
	} `yaml:"volume"`

	// Reslice parameters
	Reslice struct {
		// Plane is axial, coronal, sagittal or oblique
		Plane string `yaml:"plane"`

		// SliceDelta moves the plane from the volume center, in voxels
		SliceDelta float64 `yaml:"sliceDelta"`

		// Rotation in degrees about the slice row direction
		Rotation float64 `yaml:"rotation"`

		// ApplyRotation enables Rotation; otherwise it is only recorded
		ApplyRotation bool `yaml:"applyRotation"`

		// OffsetMode is all-axes or normal
		OffsetMode string `yaml:"offsetMode"`

		// Interpolation is nearest or linear
		Interpolation string `yaml:"interpolation"`

		// Background is the RGBA color outside the volume
		Background [4]float64 `yaml:"background"`
	} `yaml:"reslice"`

	// Output parameters
	Output struct {
		// Directory receives slices and metadata given with relative paths
		Directory string `yaml:"directory"`

		// Format is the slice image extension: jpg, png or tif
		Format string `yaml:"format"`

		// JPEGQuality is used for jpg output
		JPEGQuality int `yaml:"jpegQuality"`

		// WindowLow and WindowHigh map intensities to gray; equal values auto-window
		WindowLow  float64 `yaml:"windowLow"`
		WindowHigh float64 `yaml:"windowHigh"`

		// SquarePixels rescales anisotropic slices for display
		SquarePixels bool `yaml:"squarePixels"`

		// MetadataFormat is json or yaml
		MetadataFormat string `yaml:"metadataFormat"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// DICOM parameters
	DICOM struct {
		// FrameOfReferenceUID is copied into every slice; empty keeps the placeholder
		FrameOfReferenceUID string `yaml:"frameOfReferenceUID"`

		// GenerateFrameOfReference creates a 2.25 UID per run when no UID is set
		GenerateFrameOfReference bool `yaml:"generateFrameOfReference"`
	} `yaml:"dicom"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Volume.Spacing = [3]float64{1, 1, 1}
	cfg.Volume.RawFormat = "uint8"
	cfg.Volume.PhantomSize = 64

	cfg.Reslice.Plane = "axial"
	cfg.Reslice.OffsetMode = "all-axes"
	cfg.Reslice.Interpolation = "nearest"
	cfg.Reslice.Background = [4]float64{255, 255, 255, 255}

	cfg.Output.Directory = "."
	cfg.Output.Format = "png"
	cfg.Output.JPEGQuality = 90
	cfg.Output.WindowLow = 0
	cfg.Output.WindowHigh = 255
	cfg.Output.MetadataFormat = "json"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks values that cannot be caught by the YAML decoder
func (c *Config) Validate() error {
	for i, s := range c.Volume.Spacing {
		if s <= 0 {
			return fmt.Errorf("volume.spacing[%d] must be positive, got %v", i, s)
		}
	}
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("processing.numCores must not be negative, got %d", c.Processing.NumCores)
	}
	switch c.Output.MetadataFormat {
	case "json", "yaml":
	default:
		return fmt.Errorf("output.metadataFormat must be json or yaml, got %q", c.Output.MetadataFormat)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpegQuality must be in 1..100, got %d", c.Output.JPEGQuality)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
