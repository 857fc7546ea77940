package annotation

import (
	"errors"
	"math"

	"github.com/camden-git/entomobackend/geometry"
)

// ErrGestureFinished is returned when a committed or cancelled gesture is used again.
var ErrGestureFinished = errors.New("gesture already finished")

// GestureKind is the interaction a Gesture tracks.
type GestureKind string

const (
	GestureDraw   GestureKind = "draw"
	GestureMove   GestureKind = "move"
	GestureResize GestureKind = "resize"
)

// Handle names the edge or corner grabbed by a resize gesture.
type Handle string

const (
	HandleN  Handle = "n"
	HandleS  Handle = "s"
	HandleE  Handle = "e"
	HandleW  Handle = "w"
	HandleNE Handle = "ne"
	HandleNW Handle = "nw"
	HandleSE Handle = "se"
	HandleSW Handle = "sw"
)

// Gesture tracks one in-progress draw, drag or resize. Update may be called
// for every pointer move; nothing reaches the store or its history until
// Commit, which records exactly one entry.
type Gesture struct {
	store    *Store
	kind     GestureKind
	targetID string
	label    Label
	handle   Handle
	start    geometry.Point
	origin   BoundingBox
	current  BoundingBox
	finished bool
}

// BeginDraw starts drawing a new box of the given label at a normalized point.
func (s *Store) BeginDraw(label Label, start geometry.Point) *Gesture {
	start = geometry.Point{X: geometry.Clamp01(start.X), Y: geometry.Clamp01(start.Y)}
	box := BoxFromPoints(start, start)
	return &Gesture{store: s, kind: GestureDraw, label: label, start: start, origin: box, current: box}
}

// BeginMove starts dragging the detection with the given id.
func (s *Store) BeginMove(id string, start geometry.Point) (*Gesture, error) {
	return s.beginEdit(GestureMove, id, "", start)
}

// BeginResize starts resizing the detection with the given id by one handle.
func (s *Store) BeginResize(id string, h Handle, start geometry.Point) (*Gesture, error) {
	return s.beginEdit(GestureResize, id, h, start)
}

func (s *Store) beginEdit(kind GestureKind, id string, h Handle, start geometry.Point) (*Gesture, error) {
	d, ok := s.Get(id)
	if !ok {
		return nil, s.notFound(string(kind), id)
	}
	return &Gesture{
		store:    s,
		kind:     kind,
		targetID: id,
		handle:   h,
		start:    start,
		origin:   d.Box,
		current:  d.Box,
	}, nil
}

func (g *Gesture) Kind() GestureKind { return g.kind }
func (g *Gesture) TargetID() string  { return g.targetID }

// Preview is the box as it would be committed right now.
func (g *Gesture) Preview() BoundingBox { return g.current }

// Update moves the gesture to normalized point p.
func (g *Gesture) Update(p geometry.Point) {
	if g.finished || !geometry.IsFinite(p.X) || !geometry.IsFinite(p.Y) {
		return
	}
	switch g.kind {
	case GestureDraw:
		g.current = BoxFromPoints(g.start, p)
	case GestureMove:
		g.current = translate(g.origin, p.X-g.start.X, p.Y-g.start.Y)
	case GestureResize:
		g.current = resize(g.origin, g.handle, p.X-g.start.X, p.Y-g.start.Y)
	}
}

// Commit applies the gesture to the store as a single mutation. A move or
// resize that ends where it started changes nothing.
func (g *Gesture) Commit() (Detection, error) {
	if g.finished {
		return Detection{}, ErrGestureFinished
	}
	g.finished = true

	if g.kind == GestureDraw {
		return g.store.AddDetection(NewDetectionInput{Label: g.label, Box: g.current})
	}
	if g.current == g.origin {
		d, ok := g.store.Get(g.targetID)
		if !ok {
			return Detection{}, g.store.notFound(string(g.kind), g.targetID)
		}
		return d, nil
	}
	box := g.current
	return g.store.UpdateDetection(g.targetID, Patch{Box: &box})
}

// Cancel abandons the gesture without touching the store.
func (g *Gesture) Cancel() {
	g.finished = true
	g.current = g.origin
}

// translate shifts b by (dx, dy) without letting it leave [0,1].
func translate(b BoundingBox, dx, dy float64) BoundingBox {
	dx = math.Max(-b.XMin, math.Min(dx, 1-b.XMax))
	dy = math.Max(-b.YMin, math.Min(dy, 1-b.YMax))
	return BoundingBox{XMin: b.XMin + dx, YMin: b.YMin + dy, XMax: b.XMax + dx, YMax: b.YMax + dy}
}

// resize moves the edges named by h. Dragging an edge past its opposite
// flips the box instead of producing negative size.
func resize(b BoundingBox, h Handle, dx, dy float64) BoundingBox {
	x0, y0, x1, y1 := b.XMin, b.YMin, b.XMax, b.YMax
	switch h {
	case HandleN, HandleNE, HandleNW:
		y0 += dy
	case HandleS, HandleSE, HandleSW:
		y1 += dy
	}
	switch h {
	case HandleW, HandleNW, HandleSW:
		x0 += dx
	case HandleE, HandleNE, HandleSE:
		x1 += dx
	}
	return BoxFromPoints(geometry.Point{X: x0, Y: y0}, geometry.Point{X: x1, Y: y1})
}
