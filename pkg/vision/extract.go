package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollow/pkg/debug"
)

// Feature is the dominant contour of a mask together with its moments.
type Feature struct {
	Contour  Contour   `json:"contour"`
	Index    int       `json:"index"` // position of Contour in All
	All      []Contour `json:"-"`     // every retrieved contour, for overlays
	Area     float64   `json:"area"`
	Moments  Moments   `json:"moments"`
	Centroid Centroid  `json:"centroid"`
}

// Extractor finds the dominant line contour in a mask.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an extractor using cfg's retrieval mode and minimum
// area.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract retrieves contours from the mask and returns the one with the
// largest area. It fails with ErrNoLineDetected when the mask has no
// contours and ErrDegenerateCentroid when the largest one has zero area.
func (e *Extractor) Extract(m *Mask) (*Feature, error) {
	if m == nil || m.mat.Empty() {
		return nil, fmt.Errorf("%w: empty mask", ErrInvalidInput)
	}
	if m.mat.Channels() != 1 {
		return nil, fmt.Errorf("%w: mask has %d channels", ErrInvalidInput, m.mat.Channels())
	}

	mode := gocv.RetrievalList
	if e.cfg.Retrieval == RetrievalExternal {
		mode = gocv.RetrievalExternal
	}

	pv := gocv.FindContours(m.mat, mode, gocv.ChainApproxSimple)
	defer pv.Close()

	contours := make([]Contour, 0, pv.Size())
	for i := 0; i < pv.Size(); i++ {
		contours = append(contours, Contour(pv.At(i).ToPoints()))
	}

	debug.VisionLog("contours found", "count", len(contours), "mode", e.cfg.Retrieval)
	return SelectFeature(contours, e.cfg.MinArea)
}

// SelectFeature picks the contour with the largest area. Contours with area
// below minArea are skipped; on ties the first one wins.
func SelectFeature(contours []Contour, minArea float64) (*Feature, error) {
	best := -1
	bestArea := -1.0
	for i, c := range contours {
		a := c.Area()
		if minArea > 0 && a < minArea {
			continue
		}
		if a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return nil, ErrNoLineDetected
	}

	mom := contours[best].Moments()
	centroid, ok := mom.Centroid()
	if !ok {
		return nil, fmt.Errorf("%w: contour %d has zero area", ErrDegenerateCentroid, best)
	}

	debug.VisionLog("feature selected",
		"index", best, "area", bestArea, "cx", centroid.X, "cy", centroid.Y)

	return &Feature{
		Contour:  contours[best],
		Index:    best,
		All:      contours,
		Area:     bestArea,
		Moments:  mom,
		Centroid: centroid,
	}, nil
}
