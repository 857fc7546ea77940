// Package geometry translates pointer and touch coordinates into canvas,
// image and normalized image space. It has no dependencies on the rest of
// the module.
package geometry

import "errors"

// ErrNoCoordinates is returned when an input event carries no usable position.
var ErrNoCoordinates = errors.New("geometry: event has no coordinates")

// Touch is a single contact point as reported by a touch event.
type Touch struct {
	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
}

// PointerEvent is the union of the shapes mouse, native touch and synthetic
// framework touch events arrive in. Only the fields the source populated
// are set.
type PointerEvent struct {
	Touches        []Touch  `json:"touches,omitempty"`
	ChangedTouches []Touch  `json:"changedTouches,omitempty"`
	ClientX        *float64 `json:"clientX,omitempty"`
	ClientY        *float64 `json:"clientY,omitempty"`
}

// ClientPoint normalizes ev into client coordinates. Priority: the active
// touch list, then the changed-touch list, then the direct coordinate
// properties.
func ClientPoint(ev PointerEvent) (Point, error) {
	if len(ev.Touches) > 0 {
		t := ev.Touches[0]
		return Point{X: t.ClientX, Y: t.ClientY}, nil
	}
	if len(ev.ChangedTouches) > 0 {
		t := ev.ChangedTouches[0]
		return Point{X: t.ClientX, Y: t.ClientY}, nil
	}
	if ev.ClientX != nil && ev.ClientY != nil {
		return Point{X: *ev.ClientX, Y: *ev.ClientY}, nil
	}
	return Point{}, ErrNoCoordinates
}
