package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_EmptyWhenEqual(t *testing.T) {
	s := twoDetectionStore(t)

	cs := Diff(s.Detections(), s.Baseline(), testUploadID)
	assert.True(t, cs.IsEmpty())
	assert.Equal(t, 0, cs.Size())
	assert.NotNil(t, cs.Added)
	assert.NotNil(t, cs.Modified)
	assert.NotNil(t, cs.Deleted)
	assert.Equal(t, testUploadID, cs.UploadID)
}

func TestDiff_AddModifyDelete(t *testing.T) {
	baseline := DetectionSet{
		det("1", LabelEgg, box(0.1, 0.1, 0.2, 0.2)),
		det("2", LabelPupa, box(0.3, 0.3, 0.4, 0.4)),
		det("3", LabelAdult, box(0.5, 0.5, 0.6, 0.6)),
	}
	working := baseline.Clone()
	working[1].Label = LabelInstar3
	working[1].Status = StatusUserEdited
	working = append(working[:2], det("local_x", LabelEgg, box(0.7, 0.7, 0.8, 0.8)))

	cs := Diff(working, baseline, testUploadID)

	assert.Equal(t, []AddedDetection{{
		ClientRef:  "local_x",
		Label:      LabelEgg,
		Confidence: 0.8,
		Box:        box(0.7, 0.7, 0.8, 0.8),
		Status:     StatusModelGenerated,
	}}, cs.Added)
	assert.Equal(t, []ModifiedDetection{{
		ID:         "2",
		Label:      LabelInstar3,
		Confidence: 0.8,
		Box:        box(0.3, 0.3, 0.4, 0.4),
		Status:     StatusUserEdited,
	}}, cs.Modified)
	assert.Equal(t, []string{"3"}, cs.Deleted)
	assert.Equal(t, 3, cs.Size())
}

func TestDiff_SymmetricUnderSwap(t *testing.T) {
	a := DetectionSet{
		det("1", LabelEgg, box(0.1, 0.1, 0.2, 0.2)),
		det("2", LabelPupa, box(0.3, 0.3, 0.4, 0.4)),
	}
	b := DetectionSet{
		det("2", LabelAdult, box(0.3, 0.3, 0.4, 0.4)),
		det("5", LabelEgg, box(0.5, 0.5, 0.6, 0.6)),
		det("9", LabelEgg, box(0.7, 0.7, 0.8, 0.8)),
	}

	ab := Diff(a, b, testUploadID)
	ba := Diff(b, a, testUploadID)

	refs := func(added []AddedDetection) []string {
		out := make([]string, 0, len(added))
		for _, n := range added {
			out = append(out, n.ClientRef)
		}
		return out
	}
	assert.Equal(t, ab.Deleted, refs(ba.Added))
	assert.Equal(t, ba.Deleted, refs(ab.Added))
	assert.Len(t, ab.Modified, 1)
	assert.Len(t, ba.Modified, 1)
	assert.Equal(t, ab.Modified[0].ID, ba.Modified[0].ID)
}

func TestDiff_ApplyingChangesetReproducesWorkingSet(t *testing.T) {
	s := twoDetectionStore(t)
	_, err := s.UpdateDetection("1", Patch{Label: labelPtr(LabelAdult)})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDetection("2"))
	added, err := s.AddDetection(NewDetectionInput{Label: LabelEgg, Box: box(0.4, 0.4, 0.45, 0.5)})
	require.NoError(t, err)

	working := s.Detections()
	baseline := s.Baseline()
	cs := Diff(working, baseline, testUploadID)

	rebuilt := baseline.ByID()
	for _, id := range cs.Deleted {
		delete(rebuilt, id)
	}
	for _, m := range cs.Modified {
		d := rebuilt[m.ID]
		d.Label, d.Confidence, d.Box, d.Status = m.Label, m.Confidence, m.Box, m.Status
		rebuilt[m.ID] = d
	}
	for _, n := range cs.Added {
		rebuilt[n.ClientRef] = Detection{
			ID:                 n.ClientRef,
			UploadID:           testUploadID,
			Label:              n.Label,
			Confidence:         n.Confidence,
			OriginalConfidence: n.Confidence,
			Box:                n.Box,
			Status:             n.Status,
		}
	}
	out := make(DetectionSet, 0, len(rebuilt))
	for _, d := range rebuilt {
		out = append(out, d)
	}

	assert.True(t, out.Equal(working))
	require.Len(t, cs.Added, 1)
	assert.Equal(t, added.ID, cs.Added[0].ClientRef)
}

func TestDiff_NaturalOrder(t *testing.T) {
	var baseline DetectionSet
	for _, id := range []string{"10", "2", "1", "33", "4"} {
		baseline = append(baseline, det(id, LabelEgg, box(0.1, 0.1, 0.2, 0.2)))
	}

	cs := Diff(DetectionSet{}, baseline, testUploadID)
	assert.Equal(t, []string{"1", "2", "4", "10", "33"}, cs.Deleted)
}

func TestDiff_ExactFloatComparison(t *testing.T) {
	baseline := DetectionSet{det("1", LabelEgg, box(0.1, 0.1, 0.2, 0.2))}
	working := baseline.Clone()
	working[0].Box.XMax += 1e-12

	cs := Diff(working, baseline, testUploadID)
	assert.Len(t, cs.Modified, 1)
}

func TestDiff_IgnoresOriginalConfidence(t *testing.T) {
	baseline := DetectionSet{det("1", LabelEgg, box(0.1, 0.1, 0.2, 0.2))}
	working := baseline.Clone()
	working[0].OriginalConfidence = 0.3

	assert.True(t, Diff(working, baseline, testUploadID).IsEmpty())
}
