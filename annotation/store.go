package annotation

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/facette/natsort"

	"github.com/camden-git/entomobackend/geometry"
)

// DefaultPrecision is the number of decimal places edits are rounded to.
// It matches what the persistence layer round-trips exactly.
const DefaultPrecision = 6

// Upload identifies the image a store edits.
type Upload struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Seed is the payload an editor is opened with.
type Seed struct {
	Upload     Upload       `json:"upload"`
	Detections DetectionSet `json:"detections"`
}

// NewDetectionInput describes a box drawn by the user.
type NewDetectionInput struct {
	Label      Label       `json:"label"`
	Box        BoundingBox `json:"boundingBox"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// Patch lists the fields to change on an existing detection. Nil fields are
// left alone. When Status is nil and anything else changes, the status
// follows Status.AfterEdit.
type Patch struct {
	Label      *Label       `json:"label,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
	Box        *BoundingBox `json:"boundingBox,omitempty"`
	Status     *Status      `json:"status,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for soft failures and state changes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxHistory bounds the undo stack.
func WithMaxHistory(n int) Option {
	return func(s *Store) { s.maxHistory = n }
}

// WithPrecision sets how many decimal places edited values are rounded to.
func WithPrecision(places int) Option {
	return func(s *Store) {
		if places > 0 {
			s.precision = places
		}
	}
}

// Store owns the baseline and working detection sets for one open image.
// Every mutation records exactly one history entry. Selection lives outside
// history. A Store is safe for use from multiple goroutines; each call is
// atomic.
type Store struct {
	mu         sync.Mutex
	upload     Upload
	baseline   DetectionSet
	history    *History
	selected   string
	saving     bool
	unresolved []string // local ids persisted without a known server id
	maxHistory int
	precision  int
	log        *slog.Logger
}

// NewStore validates seed and copies it into both the baseline and the
// working set.
func NewStore(seed Seed, opts ...Option) (*Store, error) {
	if strings.TrimSpace(seed.Upload.ID) == "" {
		return nil, invalid("uploadId", "must not be empty")
	}
	for _, d := range seed.Detections {
		if d.UploadID != seed.Upload.ID {
			return nil, invalid("uploadId", "detection %q belongs to upload %q, not %q", d.ID, d.UploadID, seed.Upload.ID)
		}
	}
	if err := validateSet(seed.Detections); err != nil {
		return nil, err
	}

	s := &Store{
		upload:     seed.Upload,
		baseline:   seed.Detections.Clone(),
		maxHistory: DefaultMaxHistory,
		precision:  DefaultPrecision,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("upload_id", seed.Upload.ID)
	s.history = NewHistory(seed.Detections, s.maxHistory)
	return s, nil
}

// Upload returns the image this store edits.
func (s *Store) Upload() Upload {
	return s.upload
}

// Detections returns a copy of the working set.
func (s *Store) Detections() DetectionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Present()
}

// Baseline returns a copy of the last state known to be persisted.
func (s *Store) Baseline() DetectionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Clone()
}

// Get returns one detection from the working set.
func (s *Store) Get(id string) (Detection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.present.Get(id)
}

// Selected returns the selected detection id, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// HistoryLen returns the number of undoable steps.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.PastLen()
}

// IsDirty reports whether the working set differs from the baseline.
func (s *Store) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !Diff(s.history.present, s.baseline, s.upload.ID).IsEmpty()
}

// Saving reports whether a save is currently in flight.
func (s *Store) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// AddDetection appends a user-drawn detection with a locally generated id.
func (s *Store) AddDetection(in NewDetectionInput) (Detection, error) {
	confidence := 1.0
	if in.Confidence != nil {
		confidence = geometry.Round(*in.Confidence, s.precision)
	}
	d := Detection{
		ID:                 NewLocalID(),
		UploadID:           s.upload.ID,
		Label:              in.Label,
		Confidence:         confidence,
		OriginalConfidence: confidence,
		Box:                in.Box.Round(s.precision),
		Status:             StatusUserCreated,
	}
	if err := d.Validate(); err != nil {
		return Detection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(s.history.present.Clone(), d)
	s.apply(next)
	s.log.Debug("detection added", "detection_id", d.ID, "label", d.Label)
	return d, nil
}

// UpdateDetection applies p to the detection with the given id. An update
// that changes nothing records no history entry.
func (s *Store) UpdateDetection(id string, p Patch) (Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update("update", id, func(current Detection) Patch { return p })
}

// ConfirmDetection marks a detection as verified by the user.
func (s *Store) ConfirmDetection(id string) (Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update("confirm", id, func(current Detection) Patch {
		status := current.Status.AfterConfirm()
		return Patch{Status: &status}
	})
}

// update builds the patch from the current detection and applies it.
// Callers hold s.mu.
func (s *Store) update(op, id string, build func(Detection) Patch) (Detection, error) {
	i := s.history.present.IndexOf(id)
	if i < 0 {
		return Detection{}, s.notFound(op, id)
	}
	current := s.history.present[i]
	p := build(current)

	updated := current
	if p.Label != nil {
		updated.Label = *p.Label
	}
	if p.Confidence != nil {
		updated.Confidence = geometry.Round(*p.Confidence, s.precision)
	}
	if p.Box != nil {
		updated.Box = p.Box.Round(s.precision)
	}
	if p.Status != nil {
		updated.Status = *p.Status
	} else if updated != current {
		updated.Status = current.Status.AfterEdit()
	}
	if updated == current {
		return current, nil
	}
	if err := updated.Validate(); err != nil {
		return Detection{}, err
	}

	next := s.history.present.Clone()
	next[i] = updated
	s.apply(next)
	s.log.Debug("detection changed", "op", op, "detection_id", id, "status", updated.Status)
	return updated, nil
}

// DeleteDetection removes a detection from the working set and clears the
// selection when it pointed at it.
func (s *Store) DeleteDetection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.history.present.IndexOf(id)
	if i < 0 {
		return s.notFound("delete", id)
	}
	next := make(DetectionSet, 0, len(s.history.present)-1)
	next = append(next, s.history.present[:i]...)
	next = append(next, s.history.present[i+1:]...)
	s.apply(next)
	s.log.Debug("detection deleted", "detection_id", id)
	return nil
}

// SetSelected selects the detection with the given id. An empty id clears
// the selection.
func (s *Store) SetSelected(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.selected = ""
		return nil
	}
	if s.history.present.IndexOf(id) < 0 {
		return s.notFound("select", id)
	}
	s.selected = id
	return nil
}

// ClearSelection deselects whatever is selected.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// Undo restores the state before the last mutation. It returns false when
// there was nothing to undo.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.history.Undo(); !ok {
		s.log.Debug("undo ignored, history empty")
		return false
	}
	s.reconcileSelection()
	return true
}

// Redo re-applies the last undone mutation. It returns false when there was
// nothing to redo.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.history.Redo(); !ok {
		s.log.Debug("redo ignored, nothing undone")
		return false
	}
	s.reconcileSelection()
	return true
}

// ResetToBaseline discards every unsaved change and the whole history.
func (s *Store) ResetToBaseline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset(s.baseline)
	s.reconcileSelection()
	s.log.Info("working set reset to baseline", "detections", len(s.baseline))
}

// apply records next as one history step. Callers hold s.mu.
func (s *Store) apply(next DetectionSet) {
	s.history.Record(next)
	s.reconcileSelection()
}

func (s *Store) reconcileSelection() {
	if s.selected != "" && s.history.present.IndexOf(s.selected) < 0 {
		s.selected = ""
	}
}

func (s *Store) notFound(op, id string) error {
	s.log.Debug("ignoring operation on missing detection", "op", op, "detection_id", id)
	return &NotFoundError{ID: id}
}

// beginSave captures the state a save is computed from and marks the store
// busy. It fails with ErrConcurrentSave when a save is already pending and
// with *UnresolvedIDsError while created detections lack server ids.
func (s *Store) beginSave() (working, baseline DetectionSet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return nil, nil, ErrConcurrentSave
	}
	if len(s.unresolved) > 0 {
		return nil, nil, &UnresolvedIDsError{UploadID: s.upload.ID, IDs: slices.Clone(s.unresolved)}
	}
	s.saving = true
	return s.history.Present(), s.baseline.Clone(), nil
}

// endSave clears the busy flag. On success the snapshot captured at dispatch
// becomes the new baseline, server ids replace the local ids they were
// created for, and history restarts from the current working set. It returns
// the local ids that were persisted but got no server id.
func (s *Store) endSave(dispatched DetectionSet, createdIDs map[string]string, ok bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if !ok {
		return nil
	}
	s.baseline = remapIDs(dispatched, createdIDs)
	s.history.Reset(remapIDs(s.history.present, createdIDs))
	if serverID, found := createdIDs[s.selected]; found {
		s.selected = serverID
	}
	s.reconcileSelection()

	s.unresolved = nil
	for _, d := range s.baseline {
		if IsLocalID(d.ID) {
			s.unresolved = append(s.unresolved, d.ID)
		}
	}
	sort.Slice(s.unresolved, func(i, j int) bool { return natsort.Compare(s.unresolved[i], s.unresolved[j]) })
	return slices.Clone(s.unresolved)
}

// Unresolved returns the detections a save created whose server ids are not
// known yet.
func (s *Store) Unresolved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.unresolved)
}

// Reconcile gives server ids to detections a save created without reporting
// them. Each one is matched to a seed detection the baseline does not know,
// with equal label, confidence, box and status. Detections left without a
// match stay unresolved and saves remain refused.
func (s *Store) Reconcile(seed Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.unresolved) == 0 {
		return nil
	}
	if seed.Upload.ID != s.upload.ID {
		return invalid("uploadId", "seed is for upload %q, not %q", seed.Upload.ID, s.upload.ID)
	}

	known := s.baseline.ByID()
	candidates := make(DetectionSet, 0, len(seed.Detections))
	for _, d := range seed.Detections {
		if _, ok := known[d.ID]; !ok && !IsLocalID(d.ID) {
			candidates = append(candidates, d)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return natsort.Compare(candidates[i].ID, candidates[j].ID) })

	ids := make(map[string]string, len(s.unresolved))
	var remaining []string
	for _, local := range s.unresolved {
		match := slices.IndexFunc(candidates, func(c Detection) bool { return !changed(known[local], c) })
		if match < 0 {
			remaining = append(remaining, local)
			continue
		}
		ids[local] = candidates[match].ID
		candidates = slices.Delete(candidates, match, match+1)
	}

	s.baseline = remapIDs(s.baseline, ids)
	s.history.Remap(ids)
	if serverID, found := ids[s.selected]; found {
		s.selected = serverID
	}
	s.unresolved = remaining
	if len(remaining) > 0 {
		s.log.Warn("created detections still unresolved", "detection_ids", remaining)
		return &UnresolvedIDsError{UploadID: s.upload.ID, IDs: slices.Clone(remaining)}
	}
	s.log.Info("created detections reconciled", "count", len(ids))
	return nil
}

func remapIDs(set DetectionSet, ids map[string]string) DetectionSet {
	out := set.Clone()
	if len(ids) == 0 {
		return out
	}
	for i := range out {
		if serverID, ok := ids[out[i].ID]; ok {
			out[i].ID = serverID
		}
	}
	return out
}
