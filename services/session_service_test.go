package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/database"
	"github.com/camden-git/entomobackend/models"
	"github.com/camden-git/entomobackend/realtime"
	"github.com/camden-git/entomobackend/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go-cache's janitor only stops when the cache is collected
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Broadcast(e realtime.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	backend *LocalBackend
	upload  models.Upload
	rows    []models.Detection
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "entomo.db"), quietLogger())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	t.Cleanup(func() { _ = database.Close(db) })

	uploads := repository.NewUploadRepository(db)
	detections := repository.NewDetectionRepository(db, quietLogger())

	upload := models.Upload{Filename: "trap-4.jpg", Width: 1024, Height: 768}
	require.NoError(t, uploads.Create(&upload))
	rows := []models.Detection{
		{UploadID: upload.ID, Label: "egg", Confidence: 0.9, OriginalConfidence: 0.9, XMin: 0.1, YMin: 0.1, XMax: 0.2, YMax: 0.2, Status: "model_generated"},
		{UploadID: upload.ID, Label: "adult", Confidence: 0.7, OriginalConfidence: 0.7, XMin: 0.4, YMin: 0.4, XMax: 0.6, YMax: 0.7, Status: "model_generated"},
	}
	require.NoError(t, detections.CreateBatch(rows))

	return fixture{backend: NewLocalBackend(uploads, detections), upload: upload, rows: rows}
}

func newService(f fixture, pub Publisher, opts SessionOptions) *SessionService {
	opts.Publisher = pub
	opts.Logger = quietLogger()
	return NewSessionService(f.backend, f.backend, opts)
}

func TestLocalBackend_LoadSeed(t *testing.T) {
	f := newFixture(t)

	seed, err := f.backend.LoadSeed(context.Background(), models.FormatID(f.upload.ID))
	require.NoError(t, err)
	assert.Equal(t, "trap-4.jpg", seed.Upload.Filename)
	assert.Len(t, seed.Detections, 2)

	_, err = f.backend.LoadSeed(context.Background(), "999")
	assert.ErrorIs(t, err, ErrUploadNotFound)
	_, err = f.backend.LoadSeed(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestSessionService_OpenGetClose(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := newService(f, pub, SessionOptions{})

	sess, err := svc.Open(context.Background(), models.FormatID(f.upload.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Len(t, sess.Store.Detections(), 2)
	assert.Equal(t, 1, svc.Count())

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	other, err := svc.Open(context.Background(), models.FormatID(f.upload.ID))
	require.NoError(t, err)
	assert.NotSame(t, sess.Store, other.Store)

	require.NoError(t, svc.Close(sess.ID))
	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Close(sess.ID), ErrSessionNotFound)

	assert.Equal(t, []string{realtime.EventSessionOpened, realtime.EventSessionOpened, realtime.EventSessionClosed}, pub.types())
}

func TestSessionService_OpenUnknownUpload(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, nil, SessionOptions{})

	_, err := svc.Open(context.Background(), "4242")
	assert.ErrorIs(t, err, ErrUploadNotFound)
	assert.Zero(t, svc.Count())
}

func TestSessionService_SavePersistsAndRemapsIDs(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := newService(f, pub, SessionOptions{MaxHistory: 10})
	uploadID := models.FormatID(f.upload.ID)

	sess, err := svc.Open(context.Background(), uploadID)
	require.NoError(t, err)

	require.NoError(t, sess.Store.DeleteDetection(models.FormatID(f.rows[1].ID)))
	added, err := sess.Store.AddDetection(annotation.NewDetectionInput{
		Label: annotation.LabelPupa,
		Box:   annotation.BoundingBox{XMin: 0.3, YMin: 0.3, XMax: 0.35, YMax: 0.4},
	})
	require.NoError(t, err)
	_, err = sess.Store.ConfirmDetection(models.FormatID(f.rows[0].ID))
	require.NoError(t, err)

	outcome, err := svc.Save(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, annotation.SaveSucceeded, outcome.Status)
	assert.Equal(t, annotation.SaveResult{
		Created:    1,
		Updated:    1,
		Deleted:    1,
		Verified:   2,
		CreatedIDs: outcome.Result.CreatedIDs,
	}, outcome.Result)

	serverID := outcome.Result.CreatedIDs[added.ID]
	require.NotEmpty(t, serverID)
	_, ok := sess.Store.Get(serverID)
	assert.True(t, ok)
	assert.False(t, sess.Store.IsDirty())

	reopened, err := svc.Open(context.Background(), uploadID)
	require.NoError(t, err)
	assert.True(t, reopened.Store.Detections().Equal(sess.Store.Detections()))

	outcome, err = svc.Save(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, annotation.SaveNoop, outcome.Status)

	assert.Equal(t, []string{
		realtime.EventSessionOpened,
		realtime.EventSessionSaved,
		realtime.EventSessionOpened,
	}, pub.types())
}

func TestSessionService_SaveUnknownSession(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, nil, SessionOptions{})

	_, err := svc.Save(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_IdleSessionsExpire(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := newService(f, pub, SessionOptions{TTL: 50 * time.Millisecond, Cleanup: 10 * time.Millisecond})

	sess, err := svc.Open(context.Background(), models.FormatID(f.upload.ID))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Contains(t, pub.types(), realtime.EventSessionClosed)
}

func TestSessionService_SaveWithoutCreatedIDsReloadsServerIDs(t *testing.T) {
	f := newFixture(t)
	// the boundary only reports counts
	persister := annotation.PersisterFunc(func(ctx context.Context, uploadID string, cs annotation.Changeset) (annotation.SaveResult, error) {
		res, err := f.backend.SaveChangeset(ctx, uploadID, cs)
		res.CreatedIDs = nil
		return res, err
	})
	svc := NewSessionService(f.backend, persister, SessionOptions{Logger: quietLogger()})
	uploadID := models.FormatID(f.upload.ID)

	sess, err := svc.Open(context.Background(), uploadID)
	require.NoError(t, err)
	added, err := sess.Store.AddDetection(annotation.NewDetectionInput{
		Label: annotation.LabelPupa,
		Box:   annotation.BoundingBox{XMin: 0.3, YMin: 0.3, XMax: 0.35, YMax: 0.4},
	})
	require.NoError(t, err)

	outcome, err := svc.Save(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Result.Created)
	assert.Empty(t, sess.Store.Unresolved())
	_, ok := sess.Store.Get(added.ID)
	assert.False(t, ok)

	var serverID string
	for _, d := range sess.Store.Detections() {
		if d.Label == annotation.LabelPupa {
			serverID = d.ID
		}
	}
	require.NotEmpty(t, serverID)
	assert.False(t, annotation.IsLocalID(serverID))

	adult := annotation.LabelAdult
	_, err = sess.Store.UpdateDetection(serverID, annotation.Patch{Label: &adult})
	require.NoError(t, err)
	outcome, err = svc.Save(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Result.Updated)
	assert.False(t, sess.Store.IsDirty())

	seed, err := f.backend.LoadSeed(context.Background(), uploadID)
	require.NoError(t, err)
	row, ok := seed.Detections.Get(serverID)
	require.True(t, ok)
	assert.Equal(t, annotation.LabelAdult, row.Label)

	require.NoError(t, svc.Reconcile(context.Background(), sess.ID))
	assert.ErrorIs(t, svc.Reconcile(context.Background(), "missing"), ErrSessionNotFound)
}
