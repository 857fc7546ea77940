package geometry

import (
	"fmt"
	"math"
)

// Point is a 2D position. The space it lives in (client, image pixels or
// normalized) depends on where it came from.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in client space, e.g. the canvas
// element's bounding client rect.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport describes how an image of ImageWidth x ImageHeight pixels is
// drawn inside Element: scaled to fit the element, multiplied by Zoom and
// shifted by PanX/PanY client pixels.
type Viewport struct {
	Element     Rect
	ImageWidth  float64
	ImageHeight float64
	Zoom        float64
	PanX        float64
	PanY        float64
}

// Validate checks that the viewport can be used for coordinate conversion.
func (v Viewport) Validate() error {
	if v.Element.Width <= 0 || v.Element.Height <= 0 {
		return fmt.Errorf("invalid element size %.2fx%.2f", v.Element.Width, v.Element.Height)
	}
	if v.ImageWidth <= 0 || v.ImageHeight <= 0 {
		return fmt.Errorf("invalid image size %.2fx%.2f", v.ImageWidth, v.ImageHeight)
	}
	if !IsFinite(v.Zoom) || v.Zoom < 0 {
		return fmt.Errorf("invalid zoom %v", v.Zoom)
	}
	return nil
}

func (v Viewport) zoom() float64 {
	if v.Zoom == 0 {
		return 1
	}
	return v.Zoom
}

// scale is the number of client pixels per image pixel.
func (v Viewport) scale() float64 {
	fit := math.Min(v.Element.Width/v.ImageWidth, v.Element.Height/v.ImageHeight)
	return fit * v.zoom()
}

// ClientToImage maps a client point to image pixel coordinates.
func (v Viewport) ClientToImage(p Point) Point {
	s := v.scale()
	return Point{
		X: (p.X - v.Element.Left - v.PanX) / s,
		Y: (p.Y - v.Element.Top - v.PanY) / s,
	}
}

// ImageToNormalized maps image pixel coordinates into [0,1] space without clamping.
func (v Viewport) ImageToNormalized(p Point) Point {
	return Point{X: p.X / v.ImageWidth, Y: p.Y / v.ImageHeight}
}

// ClientToNormalized maps a client point into normalized image space,
// clamped to the image.
func (v Viewport) ClientToNormalized(p Point) Point {
	n := v.ImageToNormalized(v.ClientToImage(p))
	return Point{X: Clamp01(n.X), Y: Clamp01(n.Y)}
}

// NormalizedToClient is the inverse of ClientToNormalized for points inside the image.
func (v Viewport) NormalizedToClient(p Point) Point {
	s := v.scale()
	return Point{
		X: p.X*v.ImageWidth*s + v.Element.Left + v.PanX,
		Y: p.Y*v.ImageHeight*s + v.Element.Top + v.PanY,
	}
}

// Clamp01 limits f to [0,1]. NaN maps to 0.
func Clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NormalizedRect returns the corners of the rectangle spanned by two drag
// points, ordered (min, max) and clamped to [0,1].
func NormalizedRect(a, b Point) (Point, Point) {
	minP := Point{X: Clamp01(math.Min(a.X, b.X)), Y: Clamp01(math.Min(a.Y, b.Y))}
	maxP := Point{X: Clamp01(math.Max(a.X, b.X)), Y: Clamp01(math.Max(a.Y, b.Y))}
	return minP, maxP
}

// Round quantizes f to the given number of decimal places. Edits are
// discretized with it so stored and edited values compare exactly.
func Round(f float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(f*p) / p
}
