// lineprobe runs the vision and steering pipeline over still images without
// moving anything. For each image it prints the command the follower would
// issue and writes the thresholded mask and an annotated frame for review.
//
// Usage:
//
//	lineprobe [-config linefollow.yaml] [-vision tape] [-out probe] [-json] frames/ img1.jpg ...
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-linefollow/internal/config"
	"github.com/teslashibe/go-linefollow/internal/log"
	"github.com/teslashibe/go-linefollow/pkg/annotate"
	"github.com/teslashibe/go-linefollow/pkg/camera"
	"github.com/teslashibe/go-linefollow/pkg/debug"
	"github.com/teslashibe/go-linefollow/pkg/follower"
	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// report is one probed image.
type report struct {
	File     string             `json:"file"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Kind     follower.Kind      `json:"kind"`
	Error    string             `json:"error,omitempty"`
	Centroid *vision.Centroid   `json:"centroid,omitempty"`
	Area     float64            `json:"area,omitempty"`
	Nav      *steering.NavError `json:"nav,omitempty"`
	Command  steering.Command   `json:"command,omitempty"`
	Issued   string             `json:"command_kind,omitempty"`
	Mask     string             `json:"mask,omitempty"`
	Frame    string             `json:"frame,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "YAML config to take pipeline parameters from")
	visionPreset := flag.String("vision", "", "Vision preset (default, shadows, tape); overrides config")
	steeringPreset := flag.String("steering", "", "Steering preset (default, cautious, brisk); overrides config")
	outDir := flag.String("out", "probe", "Directory for mask and annotated images (empty disables)")
	asJSON := flag.Bool("json", false, "Print one JSON object per image")
	verbose := flag.Bool("debug-vision", false, "Trace every vision stage")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
		debug.Vision = true
	}
	log.Init(level)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: lineprobe [flags] <image or dir>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	params, err := loadParams(*configPath, *visionPreset, *steeringPreset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	files, err := collect(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
	}

	reg := annotate.NewRegistry()
	if err := reg.Add("guide", annotate.Guide{}); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if err := reg.Add("status", annotate.Status{Position: annotate.BottomLeft}); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for i, path := range files {
		r := probe(path, uint64(i), params, reg, *outDir)
		if r.Kind.Terminal() {
			failed++
		}
		if *asJSON {
			if err := enc.Encode(r); err != nil {
				fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			}
			continue
		}
		printReport(r)
	}

	if !*asJSON {
		fmt.Printf("\n%d images, %d without a usable line\n", len(files), failed)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// loadParams starts from the config file (or defaults) and applies presets.
func loadParams(path, visionPreset, steeringPreset string) (follower.Params, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return follower.Params{}, err
	}
	p := cfg.Params()
	if visionPreset != "" {
		v, ok := vision.Presets()[visionPreset]
		if !ok {
			return p, fmt.Errorf("unknown vision preset %q", visionPreset)
		}
		p.Vision = v
	}
	if steeringPreset != "" {
		s, ok := steering.Presets()[steeringPreset]
		if !ok {
			return p, fmt.Errorf("unknown steering preset %q", steeringPreset)
		}
		p.Steering = s
	}
	if errs := p.Validate(); len(errs) > 0 {
		return p, errors.New(strings.Join(errs, "; "))
	}
	return p, nil
}

// collect expands directories into their images, keeping argument order.
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		imgs, err := camera.ListImages(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, imgs...)
	}
	if len(files) == 0 {
		return nil, errors.New("no images found")
	}
	return files, nil
}

func probe(path string, seq uint64, p follower.Params, reg *annotate.Registry, outDir string) report {
	r := report{File: path}
	fail := func(err error) report {
		r.Kind = follower.Classify(err)
		r.Error = err.Error()
		return r
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", vision.ErrInvalidInput, err))
	}
	frame, err := vision.DecodeFrame(data, seq, modTime(path))
	if err != nil {
		return fail(err)
	}
	defer frame.Close()
	r.Width, r.Height = frame.Width(), frame.Height()

	mask, err := vision.NewPreprocessor(p.Vision).Process(frame)
	if err != nil {
		return fail(err)
	}
	defer mask.Close()

	ctx := annotate.Context{
		Time:   frame.Timestamp,
		ROI:    p.Vision.ROI.Rect(),
		BandLo: p.Steering.BandLoPx,
		BandHi: p.Steering.BandHiPx,
	}

	feature, ferr := vision.NewExtractor(p.Vision).Extract(mask)
	if ferr == nil {
		c := feature.Centroid
		r.Centroid, r.Area = &c, feature.Area
		ctx.Centroid, ctx.Contour = &c, feature.Contour

		nav, err := steering.NewErrorModel(p.Steering).Compute(feature.Centroid)
		if err != nil {
			ferr = err
		} else {
			r.Nav = &nav
			r.Command = steering.NewController(p.Steering).Command(nav)
			r.Issued = steering.Kind(r.Command)
			ctx.Command = r.Command.String()
		}
	}
	if ferr != nil {
		r.Kind = follower.Classify(ferr)
		r.Error = ferr.Error()
		ctx.State = r.Kind.String()
	} else {
		ctx.State = follower.StateSeeking.String()
	}

	if outDir != "" {
		if err := writeOutputs(&r, frame, mask, feature, reg, ctx, outDir); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  %s: %v\n", path, err)
		}
	}
	return r
}

func modTime(path string) time.Time {
	if st, err := os.Stat(path); err == nil {
		return st.ModTime()
	}
	return time.Now()
}

func writeOutputs(r *report, frame *vision.Frame, mask *vision.Mask, f *vision.Feature, reg *annotate.Registry, ctx annotate.Context, outDir string) error {
	base := strings.TrimSuffix(filepath.Base(r.File), filepath.Ext(r.File))
	var errs error

	if overlay, err := vision.Overlay(mask, f); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		r.Mask = filepath.Join(outDir, base+"_mask.png")
		errs = multierr.Append(errs, writePNG(r.Mask, overlay))
	}

	img, err := frame.Mat().ToImage()
	if err != nil {
		return multierr.Append(errs, err)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	errs = multierr.Append(errs, reg.Render(rgba, 1, ctx))

	jpg, err := vision.EncodeJPEG(rgba)
	if err != nil {
		return multierr.Append(errs, err)
	}
	r.Frame = filepath.Join(outDir, base+"_frame.jpg")
	return multierr.Append(errs, os.WriteFile(r.Frame, jpg, 0o644))
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return png.Encode(f, img)
}

func printReport(r report) {
	name := filepath.Base(r.File)
	if r.Error != "" {
		fmt.Printf("❌ %-24s %-20s %s\n", name, r.Kind, r.Error)
		return
	}
	fmt.Printf("✅ %-24s centroid=(%.1f, %.1f) x=%+.1fmm side=%-6s %s\n",
		name, r.Centroid.X, r.Centroid.Y, r.Nav.XMM, r.Nav.Side, r.Command)
}
