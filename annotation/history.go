package annotation

// DefaultMaxHistory bounds the number of undo steps kept per store.
const DefaultMaxHistory = 50

// History is a linear undo/redo stack of detection set snapshots. Every
// snapshot is cloned on the way in and on the way out so no entry ever
// aliases the live working set.
type History struct {
	past    []DetectionSet
	present DetectionSet
	future  []DetectionSet
	limit   int
}

// NewHistory starts a history whose present state is initial. A limit of
// zero or less uses DefaultMaxHistory.
func NewHistory(initial DetectionSet, limit int) *History {
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	return &History{present: initial.Clone(), limit: limit}
}

// Record makes next the present state. The previous present moves onto the
// past stack, the oldest past entry is evicted past the limit, and the
// future stack is cleared.
func (h *History) Record(next DetectionSet) {
	h.past = append(h.past, h.present)
	if over := len(h.past) - h.limit; over > 0 {
		// shift instead of reslicing so evicted snapshots can be collected
		n := copy(h.past, h.past[over:])
		clear(h.past[n:])
		h.past = h.past[:n]
	}
	h.present = next.Clone()
	clear(h.future)
	h.future = h.future[:0]
}

// Undo steps back one snapshot. It returns false and changes nothing when
// there is nothing to undo.
func (h *History) Undo() (DetectionSet, bool) {
	if len(h.past) == 0 {
		return h.present.Clone(), false
	}
	last := len(h.past) - 1
	h.future = append(h.future, h.present)
	h.present = h.past[last]
	h.past[last] = nil
	h.past = h.past[:last]
	return h.present.Clone(), true
}

// Redo re-applies the most recently undone snapshot. It returns false and
// changes nothing when the future stack is empty.
func (h *History) Redo() (DetectionSet, bool) {
	if len(h.future) == 0 {
		return h.present.Clone(), false
	}
	last := len(h.future) - 1
	h.past = append(h.past, h.present)
	h.present = h.future[last]
	h.future[last] = nil
	h.future = h.future[:last]
	return h.present.Clone(), true
}

// Reset drops both stacks and makes snapshot the present state.
func (h *History) Reset(snapshot DetectionSet) {
	h.past = nil
	h.future = nil
	h.present = snapshot.Clone()
}

// Remap renames detection ids in every snapshot.
func (h *History) Remap(ids map[string]string) {
	if len(ids) == 0 {
		return
	}
	for i := range h.past {
		h.past[i] = remapIDs(h.past[i], ids)
	}
	for i := range h.future {
		h.future[i] = remapIDs(h.future[i], ids)
	}
	h.present = remapIDs(h.present, ids)
}

// Present returns a copy of the current state.
func (h *History) Present() DetectionSet { return h.present.Clone() }

func (h *History) CanUndo() bool  { return len(h.past) > 0 }
func (h *History) CanRedo() bool  { return len(h.future) > 0 }
func (h *History) PastLen() int   { return len(h.past) }
func (h *History) FutureLen() int { return len(h.future) }
func (h *History) Limit() int     { return h.limit }
