package annotation

import (
	"sort"

	"github.com/facette/natsort"
)

// AddedDetection is a detection the server has never seen. It carries no id;
// ClientRef is the local id so the server can report which record it
// created for it.
type AddedDetection struct {
	ClientRef  string      `json:"clientRef"`
	Label      Label       `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"boundingBox"`
	Status     Status      `json:"status"`
}

// ModifiedDetection is the full set of comparable fields of an existing
// detection that changed.
type ModifiedDetection struct {
	ID         string      `json:"id"`
	Label      Label       `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"boundingBox"`
	Status     Status      `json:"status"`
}

// Changeset is the minimal difference between a working set and its baseline.
type Changeset struct {
	UploadID string              `json:"uploadId"`
	Added    []AddedDetection    `json:"added"`
	Modified []ModifiedDetection `json:"modified"`
	Deleted  []string            `json:"deleted"`
}

// IsEmpty reports whether applying the changeset would change nothing.
func (c Changeset) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Size is the number of records the changeset touches.
func (c Changeset) Size() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Diff compares working against baseline by id. Entries only in working are
// added, entries only in baseline are deleted, and entries in both whose
// label, confidence, box or status differ are modified. Floats compare
// exactly. Every slice is non-nil and sorted by id in natural order.
func Diff(working, baseline DetectionSet, uploadID string) Changeset {
	cs := Changeset{
		UploadID: uploadID,
		Added:    []AddedDetection{},
		Modified: []ModifiedDetection{},
		Deleted:  []string{},
	}

	base := baseline.ByID()
	work := working.ByID()

	for id, d := range work {
		old, existed := base[id]
		if !existed {
			cs.Added = append(cs.Added, AddedDetection{
				ClientRef:  d.ID,
				Label:      d.Label,
				Confidence: d.Confidence,
				Box:        d.Box,
				Status:     d.Status,
			})
			continue
		}
		if changed(old, d) {
			cs.Modified = append(cs.Modified, ModifiedDetection{
				ID:         d.ID,
				Label:      d.Label,
				Confidence: d.Confidence,
				Box:        d.Box,
				Status:     d.Status,
			})
		}
	}
	for id := range base {
		if _, ok := work[id]; !ok {
			cs.Deleted = append(cs.Deleted, id)
		}
	}

	sort.Slice(cs.Added, func(i, j int) bool { return natsort.Compare(cs.Added[i].ClientRef, cs.Added[j].ClientRef) })
	sort.Slice(cs.Modified, func(i, j int) bool { return natsort.Compare(cs.Modified[i].ID, cs.Modified[j].ID) })
	sort.Slice(cs.Deleted, func(i, j int) bool { return natsort.Compare(cs.Deleted[i], cs.Deleted[j]) })
	return cs
}

func changed(a, b Detection) bool {
	return a.Label != b.Label ||
		a.Confidence != b.Confidence ||
		a.Box != b.Box ||
		a.Status != b.Status
}
