package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const textMargin = 4

// MustColor parses a hex color such as "#00ff00". It panics on malformed
// input and is meant for package-level defaults.
func MustColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseColor parses a hex color.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("annotate: color %q: %w", hex, err)
	}
	return c, nil
}

var (
	White = MustColor("#ffffff")
	Green = MustColor("#00ff00")
	Blue  = MustColor("#0000ff")
	Amber = MustColor("#ffbf00")
)

// Text draws a string at one of the anchor positions with a dark outline
// so it stays readable on any background.
type Text struct {
	Text     string
	Position Position
	Color    color.Color
	Face     font.Face
}

// Apply draws the text.
func (t Text) Apply(img *image.RGBA, scale float64, c Context) error {
	drawText(img, t.Text, t.Position, t.Color, t.Face)
	return nil
}

func drawText(img *image.RGBA, s string, pos Position, col color.Color, face font.Face) {
	if col == nil {
		col = White
	}
	if face == nil {
		face = basicfont.Face7x13
	}

	dc := gg.NewContextForRGBA(img)
	dc.SetFontFace(face)

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	var x, y, ax, ay float64
	switch pos {
	case TopLeft:
		x, y, ax, ay = textMargin, textMargin, 0, 1
	case TopRight:
		x, y, ax, ay = w-textMargin, textMargin, 1, 1
	case BottomLeft:
		x, y, ax, ay = textMargin, h-textMargin, 0, 0
	case BottomRight:
		x, y, ax, ay = w-textMargin, h-textMargin, 1, 0
	default:
		x, y, ax, ay = w/2, h/2, 0.5, 0.5
	}

	dc.SetColor(color.Black)
	for _, d := range [][2]float64{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		dc.DrawStringAnchored(s, x+d[0], y+d[1], ax, ay)
	}
	dc.SetColor(col)
	dc.DrawStringAnchored(s, x, y, ax, ay)
}

// Clock draws the frame time.
type Clock struct {
	Layout   string
	Position Position
	Color    color.Color
}

// Apply draws the clock. A zero frame time draws nothing.
func (k Clock) Apply(img *image.RGBA, scale float64, c Context) error {
	if c.Time.IsZero() {
		return nil
	}
	layout := k.Layout
	if layout == "" {
		layout = "15:04:05"
	}
	drawText(img, c.Time.Format(layout), k.Position, k.Color, nil)
	return nil
}

// Battery draws the supply voltage as "BATT 3.9v".
type Battery struct {
	Position Position
	Color    color.Color
}

// Apply draws the voltage when it is known.
func (b Battery) Apply(img *image.RGBA, scale float64, c Context) error {
	if !c.HasBattery {
		return nil
	}
	col := b.Color
	if col == nil {
		col = Green
	}
	drawText(img, fmt.Sprintf("BATT %.1fv", c.BatteryVolts), b.Position, col, nil)
	return nil
}

// Guide draws the ROI, the straight-ahead band, the line contour and
// crosshairs through its centroid.
type Guide struct {
	LineWidth float64
}

// Apply draws the guide. Parts with no data are skipped.
func (g Guide) Apply(img *image.RGBA, scale float64, c Context) error {
	if scale <= 0 {
		return fmt.Errorf("annotate: invalid scale %v", scale)
	}
	if c.ROI.Empty() {
		return nil
	}
	lw := g.LineWidth
	if lw <= 0 {
		lw = 1
	}

	dc := gg.NewContextForRGBA(img)
	dc.SetLineWidth(lw)

	ox, oy := float64(c.ROI.Min.X)*scale, float64(c.ROI.Min.Y)*scale
	rw, rh := float64(c.ROI.Dx())*scale, float64(c.ROI.Dy())*scale

	dc.SetColor(Amber)
	dc.DrawRectangle(ox, oy, rw, rh)
	dc.Stroke()

	if c.BandHi > c.BandLo {
		for _, col := range []int{c.BandLo, c.BandHi} {
			x := ox + float64(col)*scale
			dc.DrawLine(x, oy, x, oy+rh)
		}
		dc.SetDash(3, 3)
		dc.Stroke()
		dc.SetDash()
	}

	if len(c.Contour) > 1 {
		dc.SetColor(Green)
		for i, p := range c.Contour {
			x, y := ox+float64(p.X)*scale, oy+float64(p.Y)*scale
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
		dc.Stroke()
	}

	if c.Centroid != nil {
		cx, cy := c.Centroid.Pixel()
		x, y := ox+float64(cx)*scale, oy+float64(cy)*scale
		dc.SetColor(Blue)
		dc.DrawLine(x, oy, x, oy+rh)
		dc.DrawLine(ox, y, ox+rw, y)
		dc.Stroke()
	}
	return nil
}

// Status draws the loop state and last command.
type Status struct {
	Position Position
}

// Apply draws "<state> <command>".
func (s Status) Apply(img *image.RGBA, scale float64, c Context) error {
	if c.State == "" {
		return nil
	}
	text := c.State
	if c.Command != "" {
		text += "  " + c.Command
	}
	drawText(img, text, s.Position, White, nil)
	return nil
}

// Defaults registers the standard overlay set: guide, static title,
// clock, battery and status.
func Defaults(r *Registry, title string) error {
	if err := r.Add("guide", Guide{}); err != nil {
		return err
	}
	if title != "" {
		if err := r.Add("text", Text{Text: title, Position: TopRight}); err != nil {
			return err
		}
	}
	if err := r.Add("clock", Clock{Position: TopLeft}); err != nil {
		return err
	}
	if err := r.Add("battery", Battery{Position: BottomRight}); err != nil {
		return err
	}
	return r.Add("status", Status{Position: BottomLeft})
}
