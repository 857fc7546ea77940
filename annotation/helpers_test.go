package annotation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

const testUploadID = "7"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func box(x0, y0, x1, y1 float64) BoundingBox {
	return BoundingBox{XMin: x0, YMin: y0, XMax: x1, YMax: y1}
}

func det(id string, label Label, b BoundingBox) Detection {
	return Detection{
		ID:                 id,
		UploadID:           testUploadID,
		Label:              label,
		Confidence:         0.8,
		OriginalConfidence: 0.8,
		Box:                b,
		Status:             StatusModelGenerated,
	}
}

func newTestStore(t *testing.T, detections ...Detection) *Store {
	t.Helper()
	s, err := NewStore(Seed{
		Upload:     Upload{ID: testUploadID, Filename: "slide-01.jpg"},
		Detections: detections,
	}, WithLogger(quietLogger()))
	require.NoError(t, err)
	return s
}

// twoDetectionStore is the a/b baseline used by several scenarios.
func twoDetectionStore(t *testing.T) *Store {
	t.Helper()
	return newTestStore(t,
		det("1", LabelInstar2, box(0.1, 0.1, 0.2, 0.2)),
		det("2", LabelPupa, box(0.5, 0.5, 0.7, 0.8)),
	)
}

func labelPtr(l Label) *Label { return &l }
