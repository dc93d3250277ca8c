package annotate

import (
	"errors"
	"image"
	"reflect"
	"testing"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/vision"
)

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func countNonBlack(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R != 0 || c.G != 0 || c.B != 0 {
				n++
			}
		}
	}
	return n
}

func recorder(order *[]string, name string) Func {
	return func(img *image.RGBA, scale float64, c Context) error {
		*order = append(*order, name)
		return nil
	}
}

func TestRegistry_RendersInOrder(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Add("b", recorder(&order, "b"))
	r.Add("a", recorder(&order, "a"))
	r.Add("c", recorder(&order, "c"))

	if err := r.Render(blank(10, 10), 1, Context{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("Expected %v, got %v", want, order)
	}
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Expected names %v, got %v", want, r.Names())
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	if err := r.Add("clock", Clock{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := r.Add("clock", Clock{}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if err := r.Remove("battery"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown, got %v", err)
	}
	if err := r.Remove("clock"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(r.Names()) != 0 {
		t.Errorf("Expected empty registry, got %v", r.Names())
	}
}

func TestRegistry_DisabledSkipped(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Add("a", recorder(&order, "a"))
	r.Add("b", recorder(&order, "b"))
	r.SetEnabled("a", false)

	r.Render(blank(10, 10), 1, Context{})
	if !reflect.DeepEqual(order, []string{"b"}) {
		t.Errorf("Expected only b, got %v", order)
	}
	if list := r.List(); list[0].Enabled || !list[1].Enabled {
		t.Errorf("Unexpected enabled state: %+v", list)
	}
}

func TestRegistry_ErrorsCombined(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := false

	r := NewRegistry()
	r.Add("a", Func(func(*image.RGBA, float64, Context) error { return errA }))
	r.Add("ok", Func(func(*image.RGBA, float64, Context) error { ran = true; return nil }))
	r.Add("b", Func(func(*image.RGBA, float64, Context) error { return errB }))

	err := r.Render(blank(10, 10), 1, Context{})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Expected both errors, got %v", err)
	}
	if !ran {
		t.Error("Expected later annotators to run after a failure")
	}
}

func TestBattery_DrawsOnlyWhenKnown(t *testing.T) {
	img := blank(160, 60)
	Battery{Position: BottomRight}.Apply(img, 1, Context{})
	if n := countNonBlack(img, img.Bounds()); n != 0 {
		t.Errorf("Expected nothing drawn without battery, got %d pixels", n)
	}

	Battery{Position: BottomRight}.Apply(img, 1, Context{HasBattery: true, BatteryVolts: 3.87})
	greens := 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 160; x++ {
			c := img.RGBAAt(x, y)
			if c.G > 200 && c.R < 50 && c.B < 50 {
				greens++
			}
		}
	}
	if greens == 0 {
		t.Error("Expected green battery text")
	}
	// Bottom-right anchored text stays out of the top-left quadrant.
	if n := countNonBlack(img, image.Rect(0, 0, 80, 30)); n != 0 {
		t.Errorf("Expected top-left empty, got %d pixels", n)
	}
}

func TestClock_TopLeft(t *testing.T) {
	img := blank(200, 80)
	Clock{Position: TopLeft}.Apply(img, 1, Context{Time: time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC)})

	if n := countNonBlack(img, image.Rect(0, 0, 100, 30)); n == 0 {
		t.Error("Expected clock text in the top-left corner")
	}
	if n := countNonBlack(img, image.Rect(100, 40, 200, 80)); n != 0 {
		t.Errorf("Expected bottom-right empty, got %d pixels", n)
	}
}

func TestText_Color(t *testing.T) {
	col, err := ParseColor("#ff0000")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	img := blank(120, 40)
	Text{Text: "Cam", Position: Center, Color: col}.Apply(img, 1, Context{})

	reds := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 120; x++ {
			if c := img.RGBAAt(x, y); c.R > 200 && c.G < 50 {
				reds++
			}
		}
	}
	if reds == 0 {
		t.Error("Expected red text pixels")
	}
	if _, err := ParseColor("red"); err == nil {
		t.Error("Expected error for non-hex color")
	}
}

func TestGuide_Crosshair(t *testing.T) {
	img := blank(320, 240)
	centroid := vision.Centroid{X: 40.7, Y: 20.2}
	c := Context{
		ROI:      image.Rect(80, 0, 240, 80),
		Centroid: &centroid,
		Contour:  vision.Contour{{30, 10}, {50, 10}, {50, 30}, {30, 30}},
		BandLo:   75,
		BandHi:   85,
	}
	if err := (Guide{}).Apply(img, 1, c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Vertical crosshair at ROI x0 + 40.
	if n := countNonBlack(img, image.Rect(119, 50, 122, 70)); n == 0 {
		t.Error("Expected vertical crosshair near x=120")
	}
	// Nothing below the ROI.
	if n := countNonBlack(img, image.Rect(0, 100, 320, 240)); n != 0 {
		t.Errorf("Expected nothing below ROI, got %d pixels", n)
	}
}

func TestGuide_InvalidScale(t *testing.T) {
	if err := (Guide{}).Apply(blank(10, 10), 0, Context{}); err == nil {
		t.Error("Expected error for zero scale")
	}
}

func TestDefaults(t *testing.T) {
	r := NewRegistry()
	if err := Defaults(r, "Line-Cam"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{"guide", "text", "clock", "battery", "status"}
	if !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("Expected %v, got %v", want, r.Names())
	}
	if err := r.Render(blank(320, 240), 1, Context{Time: time.Now(), State: "seeking"}); err != nil {
		t.Errorf("Unexpected render error: %v", err)
	}
}

func TestParsePosition(t *testing.T) {
	for _, p := range []Position{TopLeft, TopRight, BottomLeft, BottomRight, Center} {
		got, ok := ParsePosition(p.String())
		if !ok || got != p {
			t.Errorf("Expected %v, got %v (%v)", p, got, ok)
		}
	}
	if _, ok := ParsePosition("middle"); ok {
		t.Error("Expected unknown position to fail")
	}
}
