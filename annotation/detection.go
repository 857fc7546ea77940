// Package annotation is the annotation editing core: the detection entity
// model, a bounded undo/redo history, the per-image Store, the changeset
// differ and the save coordinator that talks to the persistence boundary.
package annotation

import (
	"strings"

	"github.com/camden-git/entomobackend/geometry"
	"github.com/google/uuid"
)

// Label is the life stage a detection is classified as.
type Label string

const (
	LabelEgg     Label = "egg"
	LabelInstar1 Label = "instar_1"
	LabelInstar2 Label = "instar_2"
	LabelInstar3 Label = "instar_3"
	LabelPupa    Label = "pupa"
	LabelAdult   Label = "adult"
)

var labels = []Label{LabelEgg, LabelInstar1, LabelInstar2, LabelInstar3, LabelPupa, LabelAdult}

// Labels returns the label enumeration in life-cycle order.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// Valid reports whether l is part of the enumeration.
func (l Label) Valid() bool {
	for _, known := range labels {
		if l == known {
			return true
		}
	}
	return false
}

// Status records whether a detection is untouched model output or has been
// created, edited or confirmed by a user.
type Status string

const (
	StatusModelGenerated      Status = "model_generated"
	StatusUserCreated         Status = "user_created"
	StatusUserConfirmed       Status = "user_confirmed"
	StatusUserEdited          Status = "user_edited"
	StatusUserEditedConfirmed Status = "user_edited_confirmed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusModelGenerated, StatusUserCreated, StatusUserConfirmed,
		StatusUserEdited, StatusUserEditedConfirmed:
		return true
	}
	return false
}

// IsVerified reports whether a human has vouched for the detection.
func (s Status) IsVerified() bool {
	switch s {
	case StatusUserCreated, StatusUserConfirmed, StatusUserEditedConfirmed:
		return true
	}
	return false
}

// IsUserTouched reports whether the detection is anything other than
// untouched model output.
func (s Status) IsUserTouched() bool {
	return s.Valid() && s != StatusModelGenerated
}

// AfterEdit is the status a detection moves to when its label or box changes.
func (s Status) AfterEdit() Status {
	if s == StatusUserCreated {
		return StatusUserCreated
	}
	return StatusUserEdited
}

// AfterConfirm is the status a detection moves to when a user confirms it.
func (s Status) AfterConfirm() Status {
	switch s {
	case StatusModelGenerated:
		return StatusUserConfirmed
	case StatusUserEdited:
		return StatusUserEditedConfirmed
	}
	return s
}

// BoundingBox is a rectangle in normalized image coordinates.
type BoundingBox struct {
	XMin float64 `json:"xMin"`
	YMin float64 `json:"yMin"`
	XMax float64 `json:"xMax"`
	YMax float64 `json:"yMax"`
}

// BoxFromPoints builds a box from two opposite corners in normalized space.
func BoxFromPoints(a, b geometry.Point) BoundingBox {
	minP, maxP := geometry.NormalizedRect(a, b)
	return BoundingBox{XMin: minP.X, YMin: minP.Y, XMax: maxP.X, YMax: maxP.Y}
}

func (b BoundingBox) Width() float64  { return b.XMax - b.XMin }
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }
func (b BoundingBox) Area() float64   { return b.Width() * b.Height() }

// IsDegenerate reports a zero or negative width or height.
func (b BoundingBox) IsDegenerate() bool {
	return !(b.XMin < b.XMax) || !(b.YMin < b.YMax)
}

// Validate checks that every coordinate is finite, inside [0,1] and that the
// box has positive area.
func (b BoundingBox) Validate() error {
	coords := []struct {
		name string
		v    float64
	}{{"xMin", b.XMin}, {"yMin", b.YMin}, {"xMax", b.XMax}, {"yMax", b.YMax}}
	for _, c := range coords {
		if !geometry.IsFinite(c.v) {
			return invalid("boundingBox."+c.name, "coordinate must be a finite number")
		}
		if c.v < 0 || c.v > 1 {
			return invalid("boundingBox."+c.name, "coordinate %v outside normalized range [0,1]", c.v)
		}
	}
	if b.IsDegenerate() {
		return invalid("boundingBox", "degenerate box (%v,%v)-(%v,%v)", b.XMin, b.YMin, b.XMax, b.YMax)
	}
	return nil
}

// Round quantizes the box to the stored precision.
func (b BoundingBox) Round(places int) BoundingBox {
	return BoundingBox{
		XMin: geometry.Round(b.XMin, places),
		YMin: geometry.Round(b.YMin, places),
		XMax: geometry.Round(b.XMax, places),
		YMax: geometry.Round(b.YMax, places),
	}
}

// Detection is one annotated object on one image. It is a pure value: a
// copy never shares state with the original.
type Detection struct {
	ID                 string      `json:"id"`
	UploadID           string      `json:"uploadId"`
	Label              Label       `json:"label"`
	Confidence         float64     `json:"confidence"`
	OriginalConfidence float64     `json:"originalConfidence"`
	Box                BoundingBox `json:"boundingBox"`
	Status             Status      `json:"status"`
}

// DetectionInput is untrusted detection data, e.g. a seed row or a request body.
type DetectionInput struct {
	ID                 string      `json:"id"`
	UploadID           string      `json:"uploadId"`
	Label              Label       `json:"label"`
	Confidence         float64     `json:"confidence"`
	OriginalConfidence float64     `json:"originalConfidence"`
	Box                BoundingBox `json:"boundingBox"`
	Status             Status      `json:"status"`
}

// NewDetection validates in and returns the detection it describes.
func NewDetection(in DetectionInput) (Detection, error) {
	d := Detection(in)
	if err := d.Validate(); err != nil {
		return Detection{}, err
	}
	return d, nil
}

// Validate checks every invariant of a detection.
func (d Detection) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return invalid("id", "must not be empty")
	}
	if strings.TrimSpace(d.UploadID) == "" {
		return invalid("uploadId", "must not be empty")
	}
	if !d.Label.Valid() {
		return invalid("label", "unknown label %q", d.Label)
	}
	if !d.Status.Valid() {
		return invalid("status", "unknown status %q", d.Status)
	}
	if err := validateConfidence("confidence", d.Confidence); err != nil {
		return err
	}
	if err := validateConfidence("originalConfidence", d.OriginalConfidence); err != nil {
		return err
	}
	return d.Box.Validate()
}

func validateConfidence(field string, v float64) error {
	if !geometry.IsFinite(v) || v < 0 || v > 1 {
		return invalid(field, "must be a number between 0 and 1, got %v", v)
	}
	return nil
}

// LocalIDPrefix marks identifiers generated on the client for detections
// the server has not stored yet. Server ids are plain decimal numbers.
const LocalIDPrefix = "local_"

// NewLocalID returns a fresh client-side identifier.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was generated client side.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
