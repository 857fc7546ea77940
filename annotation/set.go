package annotation

// DetectionSet is the collection of detections for one image. Order carries
// no meaning; ids are unique.
type DetectionSet []Detection

// Clone returns an independent copy. Detection has no reference fields, so
// copying the slice copies everything.
func (s DetectionSet) Clone() DetectionSet {
	if s == nil {
		return DetectionSet{}
	}
	out := make(DetectionSet, len(s))
	copy(out, s)
	return out
}

// IndexOf returns the position of id, or -1.
func (s DetectionSet) IndexOf(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the detection with the given id.
func (s DetectionSet) Get(id string) (Detection, bool) {
	if i := s.IndexOf(id); i >= 0 {
		return s[i], true
	}
	return Detection{}, false
}

// ByID indexes the set by id.
func (s DetectionSet) ByID() map[string]Detection {
	m := make(map[string]Detection, len(s))
	for _, d := range s {
		m[d.ID] = d
	}
	return m
}

// Equal reports whether both sets hold the same detections, ignoring order.
func (s DetectionSet) Equal(other DetectionSet) bool {
	if len(s) != len(other) {
		return false
	}
	idx := other.ByID()
	for _, d := range s {
		o, ok := idx[d.ID]
		if !ok || o != d {
			return false
		}
	}
	return true
}

// validateSet checks every detection and rejects duplicate ids.
func validateSet(s DetectionSet) error {
	seen := make(map[string]struct{}, len(s))
	for _, d := range s {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := seen[d.ID]; dup {
			return invalid("id", "duplicate id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
