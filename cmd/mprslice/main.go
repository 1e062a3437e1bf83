package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mprslice/internal/monitoring"
	"mprslice/pkg/config"
	"mprslice/pkg/imagedata"
	"mprslice/pkg/mpr"
	"mprslice/pkg/plane"
	"mprslice/pkg/reslice"
	"mprslice/pkg/visualization"
)

// sliceSummary describes the resliced image in the metadata document.
type sliceSummary struct {
	Dimensions [3]int          `json:"dimensions" yaml:"dimensions"`
	Spacing    [3]float64      `json:"spacing" yaml:"spacing"`
	Origin     [3]float64      `json:"origin" yaml:"origin"`
	Extent     [6]int          `json:"extent" yaml:"extent"`
	Stats      imagedata.Stats `json:"stats" yaml:"stats"`
	Image      string          `json:"image,omitempty" yaml:"image,omitempty"`
}

// sliceReport is the document written next to each slice image.
type sliceReport struct {
	Plane    string       `json:"plane" yaml:"plane"`
	Slice    sliceSummary `json:"slice" yaml:"slice"`
	Axes     plane.Axes   `json:"axes" yaml:"axes"`
	Rotation float64      `json:"rotation" yaml:"rotation"`
	MetaData mpr.MetaData `json:"metaData" yaml:"metaData"`
}

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "mprslice.yaml", "YAML configuration file (defaults are used if it does not exist)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	inputPath := flag.String("input", "", "Directory of 2D slices, or a headerless .raw volume")
	dims := flag.String("dims", "", "Dimensions x,y,z of a .raw volume")
	rawFormat := flag.String("raw-format", "", "Sample type of a .raw volume: uint8, uint16 or float64")
	phantom := flag.Int("phantom", 0, "Use a synthetic N^3 volume instead of -input")
	spacing := flag.String("spacing", "", "Voxel spacing x,y,z in mm")
	planeName := flag.String("plane", "", "Plane: axial, coronal, sagittal, oblique (or 0-3)")
	allPlanes := flag.Bool("all-planes", false, "Produce a slice for every plane")
	delta := flag.Float64("delta", 0, "Slice offset from the volume center, in voxels")
	rotation := flag.Float64("rotation", 0, "Rotation in degrees about the slice row direction")
	applyRotation := flag.Bool("apply-rotation", false, "Apply -rotation to the plane basis")
	offsetMode := flag.String("offset-mode", "", "How -delta moves the plane: all-axes or normal")
	interp := flag.String("interp", "", "Interpolation: nearest or linear")
	output := flag.String("output", "", "Slice image file (.jpg, .png, .tif)")
	metadata := flag.String("metadata", "", "Metadata file (.json or .yaml)")
	squarePixels := flag.Bool("square-pixels", false, "Rescale slices with anisotropic pixels for display")
	exportStack := flag.String("export-stack", "", "Also save every orthogonal layer along x, y and z into this directory")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	quiet := flag.Bool("quiet", false, "Suppress diagnostic output")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line override the config file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["spacing"] {
		s, err := parseTriple(*spacing)
		if err != nil {
			log.Fatalf("Invalid -spacing: %v", err)
		}
		cfg.Volume.Spacing = s
	}
	if set["raw-format"] {
		cfg.Volume.RawFormat = *rawFormat
	}
	if set["phantom"] {
		cfg.Volume.PhantomSize = *phantom
	}
	if set["plane"] {
		cfg.Reslice.Plane = *planeName
	}
	if set["delta"] {
		cfg.Reslice.SliceDelta = *delta
	}
	if set["rotation"] {
		cfg.Reslice.Rotation = *rotation
	}
	if set["apply-rotation"] {
		cfg.Reslice.ApplyRotation = *applyRotation
	}
	if set["offset-mode"] {
		cfg.Reslice.OffsetMode = *offsetMode
	}
	if set["interp"] {
		cfg.Reslice.Interpolation = *interp
	}
	if set["square-pixels"] {
		cfg.Output.SquarePixels = *squarePixels
	}
	if set["cores"] {
		cfg.Processing.NumCores = *numCores
	}
	if *quiet {
		cfg.Output.Verbose = false
	}
	if !cfg.Output.Verbose {
		monitoring.SetLogger(nil)
	}

	if *inputPath == "" && !set["phantom"] {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("MULTI-PLANAR REFORMAT SLICING")
	fmt.Println("================================")

	startTime := time.Now()
	vol, err := loadVolume(cfg, *inputPath, *dims)
	if err != nil {
		log.Fatalf("Failed to load volume: %v", err)
	}
	fmt.Printf("Volume: %v\n", vol)

	opts, err := sliceOptions(cfg)
	if err != nil {
		log.Fatalf("Invalid slice options: %v", err)
	}

	planes := []plane.Plane{opts.Plane}
	if *allPlanes {
		planes = plane.Planes()
	}

	imagePath := *output
	if imagePath == "" {
		imagePath = "slice." + strings.TrimPrefix(cfg.Output.Format, ".")
	}
	metadataPath := *metadata
	if metadataPath == "" {
		metadataPath = strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + "." + cfg.Output.MetadataFormat
	}

	viewer := visualization.NewViewer(vol)
	viewer.JPEGQuality = cfg.Output.JPEGQuality
	viewer.SetWindow(visualization.Window{Low: cfg.Output.WindowLow, High: cfg.Output.WindowHigh})

	for _, p := range planes {
		opts.Plane = p
		img, meta := imagePath, metadataPath
		if len(planes) > 1 {
			img, meta = withSuffix(img, p.String()), withSuffix(meta, p.String())
		}
		img, meta = resolve(cfg.Output.Directory, img), resolve(cfg.Output.Directory, meta)

		if err := writeSlice(vol, viewer, opts, cfg.Output.SquarePixels, img, meta); err != nil {
			log.Fatalf("Failed to create %s slice: %v", p, err)
		}
		fmt.Printf("%s slice saved to: %s (metadata: %s)\n", p, img, meta)
	}

	if *exportStack != "" {
		fmt.Println("\nExtracting orthogonal layers along all axes...")
		stackDir := resolve(cfg.Output.Directory, *exportStack)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(stackDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
			if err := viewer.SaveSliceSequence(axis, axisDir, "."+strings.TrimPrefix(cfg.Output.Format, ".")); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}
	}

	fmt.Printf("\nCompleted in %.2f seconds using %d cores\n", time.Since(startTime).Seconds(), opts.NumWorkers)
}

// loadVolume picks the phantom, a raw volume or a slice directory.
func loadVolume(cfg *config.Config, input, dims string) (*imagedata.ImageData, error) {
	if input == "" {
		return imagedata.Phantom(cfg.Volume.PhantomSize, cfg.Volume.Spacing)
	}

	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return imagedata.LoadSliceDirectory(input, cfg.Volume.Spacing)
	}

	if dims == "" {
		return nil, fmt.Errorf("-dims is required for raw volume %s", input)
	}
	d, err := parseTriple(dims)
	if err != nil {
		return nil, fmt.Errorf("invalid -dims: %w", err)
	}
	format, err := imagedata.ParseRawFormat(cfg.Volume.RawFormat)
	if err != nil {
		return nil, err
	}
	return imagedata.LoadRaw(input, [3]int{int(d[0]), int(d[1]), int(d[2])}, cfg.Volume.Spacing, format)
}

// sliceOptions translates the reslice section of the config.
func sliceOptions(cfg *config.Config) (mpr.Options, error) {
	p, err := plane.Parse(cfg.Reslice.Plane)
	if err != nil {
		return mpr.Options{}, err
	}
	mode, err := mpr.ParseOffsetMode(cfg.Reslice.OffsetMode)
	if err != nil {
		return mpr.Options{}, err
	}
	interp, err := reslice.ParseInterpolation(cfg.Reslice.Interpolation)
	if err != nil {
		return mpr.Options{}, err
	}

	uid := cfg.DICOM.FrameOfReferenceUID
	if uid == "" && cfg.DICOM.GenerateFrameOfReference {
		uid = mpr.NewFrameOfReferenceUID()
	}

	background := cfg.Reslice.Background
	workers := cfg.Processing.NumCores
	if workers <= 0 {
		workers = 1
	}
	return mpr.Options{
		Plane:               p,
		Rotation:            cfg.Reslice.Rotation,
		ApplyRotation:       cfg.Reslice.ApplyRotation,
		SliceDelta:          cfg.Reslice.SliceDelta,
		OffsetMode:          mode,
		Interpolation:       interp,
		Background:          &background,
		NumWorkers:          workers,
		FrameOfReferenceUID: uid,
	}, nil
}

// writeSlice creates one slice and writes its image and metadata document.
func writeSlice(vol *imagedata.ImageData, viewer *visualization.Viewer, opts mpr.Options, square bool, imagePath, metadataPath string) error {
	res, err := mpr.CreateSlice(vol, opts)
	if err != nil {
		return err
	}

	var out image.Image = viewer.Render(res.Slice)
	if square {
		pm := res.MetaData.ImagePlaneModule
		out = visualization.SquarePixels(out, pm.ColumnPixelSpacing, pm.RowPixelSpacing)
	}
	if err := viewer.SaveSlice(out, imagePath); err != nil {
		return err
	}

	report := sliceReport{
		Plane: opts.Plane.String(),
		Slice: sliceSummary{
			Dimensions: res.Slice.Dimensions(),
			Spacing:    res.Slice.Spacing(),
			Origin:     res.Slice.Origin(),
			Extent:     res.Slice.Extent(),
			Stats:      res.Slice.Stats(),
			Image:      filepath.Base(imagePath),
		},
		Axes:     res.Axes,
		Rotation: res.Rotation,
		MetaData: res.MetaData,
	}
	return writeReport(report, metadataPath)
}

func writeReport(report sliceReport, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(report)
	case ".json":
		data, err = json.MarshalIndent(report, "", "  ")
	default:
		return fmt.Errorf("unsupported metadata format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("error marshaling metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// parseTriple parses "a,b,c" into three floats.
func parseTriple(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected three comma separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// withSuffix turns dir/slice.png into dir/slice_<suffix>.png.
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
