package annotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type persistCall struct {
	uploadID string
	cs       Changeset
}

type persistReply struct {
	res SaveResult
	err error
}

// gatedPersister hands every call to the test and blocks until the test
// replies or the context is cancelled.
type gatedPersister struct {
	calls   chan persistCall
	replies chan persistReply
}

func newGatedPersister() *gatedPersister {
	return &gatedPersister{
		calls:   make(chan persistCall, 4),
		replies: make(chan persistReply),
	}
}

func (g *gatedPersister) SaveChangeset(ctx context.Context, uploadID string, cs Changeset) (SaveResult, error) {
	g.calls <- persistCall{uploadID: uploadID, cs: cs}
	select {
	case r := <-g.replies:
		return r.res, r.err
	case <-ctx.Done():
		return SaveResult{}, ctx.Err()
	}
}

func (g *gatedPersister) nextCall(t *testing.T) persistCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("persister was not called")
		return persistCall{}
	}
}

func (g *gatedPersister) reply(t *testing.T, res SaveResult, err error) {
	t.Helper()
	select {
	case g.replies <- persistReply{res: res, err: err}:
	case <-time.After(2 * time.Second):
		t.Fatal("persister did not accept reply")
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []SaveStatus
}

func (r *recordingObserver) SaveStarted(string, Changeset) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *recordingObserver) SaveFinished(_ string, status SaveStatus, _ Changeset, _ time.Duration) {
	r.mu.Lock()
	r.finished = append(r.finished, status)
	r.mu.Unlock()
}

func (r *recordingObserver) statuses() []SaveStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SaveStatus(nil), r.finished...)
}

func newTestCoordinator(t *testing.T, s *Store, p Persister, obs Observer) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(s, p, WithObserver(obs), WithCoordinatorLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

func TestNewCoordinator_RequiresStoreAndPersister(t *testing.T) {
	_, err := NewCoordinator(nil, newGatedPersister())
	require.Error(t, err)

	_, err = NewCoordinator(twoDetectionStore(t), nil)
	require.Error(t, err)
}

func TestCoordinator_EmptyChangesetIsNoop(t *testing.T) {
	s := twoDetectionStore(t)
	d, err := s.AddDetection(NewDetectionInput{Label: LabelEgg, Box: box(0.3, 0.3, 0.4, 0.4)})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDetection(d.ID))

	p := newGatedPersister()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, s, p, obs)

	out, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveNoop, out.Status)
	assert.True(t, out.Changeset.IsEmpty())
	assert.Empty(t, p.calls)
	assert.Equal(t, 2, s.HistoryLen(), "a no-op save keeps history")
	assert.False(t, s.Saving())
	assert.Equal(t, []SaveStatus{SaveNoop}, obs.statuses())
}

func TestCoordinator_SuccessRebaselines(t *testing.T) {
	s := twoDetectionStore(t)
	_, err := s.UpdateDetection("1", Patch{Label: labelPtr(LabelAdult)})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDetection("2"))

	p := newGatedPersister()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, s, p, obs)

	pending, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Saving())

	call := p.nextCall(t)
	assert.Equal(t, testUploadID, call.uploadID)
	assert.Equal(t, []string{"2"}, call.cs.Deleted)
	require.Len(t, call.cs.Modified, 1)
	assert.Equal(t, "1", call.cs.Modified[0].ID)

	p.reply(t, SaveResult{Updated: 1, Deleted: 1, Verified: 0}, nil)
	out, err := pending.Wait()
	require.NoError(t, err)
	assert.Equal(t, SaveSucceeded, out.Status)
	assert.Equal(t, 1, out.Result.Deleted)

	assert.True(t, s.Baseline().Equal(s.Detections()))
	assert.False(t, s.IsDirty())
	assert.False(t, s.CanUndo())
	assert.False(t, s.Saving())
	assert.True(t, Diff(s.Detections(), s.Baseline(), testUploadID).IsEmpty())
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []SaveStatus{SaveSucceeded}, obs.statuses())
}

func TestCoordinator_FailureKeepsEverything(t *testing.T) {
	s := twoDetectionStore(t)
	baseline := s.Baseline()
	_, err := s.UpdateDetection("2", Patch{Label: labelPtr(LabelInstar1)})
	require.NoError(t, err)
	working := s.Detections()

	p := newGatedPersister()
	c := newTestCoordinator(t, s, p, nil)

	pending, err := c.Start(context.Background())
	require.NoError(t, err)
	p.nextCall(t)
	boom := errors.New("connection reset")
	p.reply(t, SaveResult{}, boom)

	out, err := pending.Wait()
	require.Error(t, err)
	assert.Equal(t, SaveFailed, out.Status)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, testUploadID, perr.UploadID)
	assert.ErrorIs(t, err, boom)

	assert.True(t, s.Baseline().Equal(baseline))
	assert.Equal(t, working, s.Detections())
	assert.Equal(t, 1, s.HistoryLen())
	assert.False(t, s.Saving())

	// retry goes through
	pending, err = c.Start(context.Background())
	require.NoError(t, err)
	p.nextCall(t)
	p.reply(t, SaveResult{Updated: 1}, nil)
	_, err = pending.Wait()
	require.NoError(t, err)
	assert.False(t, s.IsDirty())
}

func TestCoordinator_EditsDuringSaveStayDirty(t *testing.T) {
	s := twoDetectionStore(t)
	added, err := s.AddDetection(NewDetectionInput{Label: LabelEgg, Box: box(0.3, 0.3, 0.4, 0.4)})
	require.NoError(t, err)
	require.NoError(t, s.SetSelected(added.ID))

	p := newGatedPersister()
	c := newTestCoordinator(t, s, p, nil)

	pending, err := c.Start(context.Background())
	require.NoError(t, err)
	call := p.nextCall(t)
	require.Len(t, call.cs.Added, 1)
	assert.Equal(t, added.ID, call.cs.Added[0].ClientRef)
	assert.Equal(t, pending.Changeset(), call.cs)

	// edit while the save is in flight
	_, err = s.UpdateDetection("1", Patch{Label: labelPtr(LabelAdult)})
	require.NoError(t, err)

	p.reply(t, SaveResult{Created: 1, CreatedIDs: map[string]string{added.ID: "101"}}, nil)
	_, err = pending.Wait()
	require.NoError(t, err)

	baseline := s.Baseline()
	_, ok := baseline.Get("101")
	assert.True(t, ok, "baseline holds the server id")
	_, ok = baseline.Get(added.ID)
	assert.False(t, ok)
	b1, _ := baseline.Get("1")
	assert.Equal(t, LabelInstar2, b1.Label, "baseline is the snapshot taken at dispatch")

	assert.Equal(t, "101", s.Selected())
	assert.True(t, s.IsDirty())
	assert.False(t, s.CanUndo())

	cs := Diff(s.Detections(), s.Baseline(), testUploadID)
	assert.Empty(t, cs.Added)
	assert.Empty(t, cs.Deleted)
	require.Len(t, cs.Modified, 1)
	assert.Equal(t, "1", cs.Modified[0].ID)
}

func TestCoordinator_SecondSaveIsRejected(t *testing.T) {
	s := twoDetectionStore(t)
	require.NoError(t, s.DeleteDetection("1"))

	p := newGatedPersister()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, s, p, obs)

	pending, err := c.Start(context.Background())
	require.NoError(t, err)
	p.nextCall(t)

	_, err = c.Start(context.Background())
	require.ErrorIs(t, err, ErrConcurrentSave)
	out, err := c.Save(context.Background())
	require.ErrorIs(t, err, ErrConcurrentSave)
	assert.Equal(t, SaveRejected, out.Status)
	assert.Empty(t, p.calls, "rejected saves never reach the persister")

	p.reply(t, SaveResult{Deleted: 1}, nil)
	_, err = pending.Wait()
	require.NoError(t, err)

	out, err = c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveNoop, out.Status)
	assert.Equal(t, []SaveStatus{SaveRejected, SaveRejected, SaveSucceeded, SaveNoop}, obs.statuses())
}

func TestCoordinator_CancelAborts(t *testing.T) {
	s := twoDetectionStore(t)
	require.NoError(t, s.DeleteDetection("2"))
	baseline := s.Baseline()

	p := newGatedPersister()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, s, p, obs)

	ctx, cancel := context.WithCancel(context.Background())
	pending, err := c.Start(ctx)
	require.NoError(t, err)
	p.nextCall(t)
	cancel()

	out, err := pending.Wait()
	require.ErrorIs(t, err, ErrSaveAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, SaveAborted, out.Status)
	assert.True(t, s.Baseline().Equal(baseline))
	assert.True(t, s.IsDirty())
	assert.False(t, s.Saving())
	assert.Equal(t, []SaveStatus{SaveAborted}, obs.statuses())
}

func TestCoordinator_PersisterFunc(t *testing.T) {
	s := twoDetectionStore(t)
	_, err := s.ConfirmDetection("2")
	require.NoError(t, err)

	var got Changeset
	p := PersisterFunc(func(_ context.Context, _ string, cs Changeset) (SaveResult, error) {
		got = cs
		return SaveResult{Updated: 1, Verified: 1}, nil
	})
	c := newTestCoordinator(t, s, p, nil)

	out, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Verified)
	require.Len(t, got.Modified, 1)
	assert.Equal(t, StatusUserConfirmed, got.Modified[0].Status)
}

func TestCoordinator_InFlightEditsBecomePendingChanges(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(t *testing.T, s *Store) string
		check func(t *testing.T, cs Changeset, id string)
	}{
		{
			name: "modified",
			edit: func(t *testing.T, s *Store) string {
				_, err := s.UpdateDetection("2", Patch{Label: labelPtr(LabelAdult)})
				require.NoError(t, err)
				return "2"
			},
			check: func(t *testing.T, cs Changeset, id string) {
				assert.Empty(t, cs.Added)
				assert.Empty(t, cs.Deleted)
				require.Len(t, cs.Modified, 1)
				assert.Equal(t, id, cs.Modified[0].ID)
				assert.Equal(t, LabelAdult, cs.Modified[0].Label)
			},
		},
		{
			name: "added",
			edit: func(t *testing.T, s *Store) string {
				d, err := s.AddDetection(NewDetectionInput{Label: LabelEgg, Box: box(0.3, 0.3, 0.4, 0.4)})
				require.NoError(t, err)
				return d.ID
			},
			check: func(t *testing.T, cs Changeset, id string) {
				assert.Empty(t, cs.Modified)
				assert.Empty(t, cs.Deleted)
				require.Len(t, cs.Added, 1)
				assert.Equal(t, id, cs.Added[0].ClientRef)
			},
		},
		{
			name: "deleted",
			edit: func(t *testing.T, s *Store) string {
				require.NoError(t, s.DeleteDetection("2"))
				return "2"
			},
			check: func(t *testing.T, cs Changeset, id string) {
				assert.Empty(t, cs.Added)
				assert.Empty(t, cs.Modified)
				assert.Equal(t, []string{id}, cs.Deleted)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twoDetectionStore(t)
			_, err := s.UpdateDetection("1", Patch{Label: labelPtr(LabelAdult)})
			require.NoError(t, err)

			p := newGatedPersister()
			c := newTestCoordinator(t, s, p, nil)
			pending, err := c.Start(context.Background())
			require.NoError(t, err)
			call := p.nextCall(t)
			require.Len(t, call.cs.Modified, 1)

			id := tt.edit(t, s)

			p.reply(t, SaveResult{Updated: 1}, nil)
			_, err = pending.Wait()
			require.NoError(t, err)

			assert.True(t, s.IsDirty())
			assert.Empty(t, s.Unresolved())
			tt.check(t, Diff(s.Detections(), s.Baseline(), testUploadID), id)
		})
	}
}

// countsOnly applies nothing and reports counts without server ids.
func countsOnly(calls *[]Changeset) PersisterFunc {
	return func(_ context.Context, _ string, cs Changeset) (SaveResult, error) {
		*calls = append(*calls, cs)
		return SaveResult{Created: len(cs.Added), Updated: len(cs.Modified), Deleted: len(cs.Deleted)}, nil
	}
}

// serverSeed is twoDetectionStore's baseline plus the row the server created
// for a pupa drawn at box(0.3, 0.3, 0.4, 0.4).
func serverSeed() Seed {
	created := det("3", LabelPupa, box(0.3, 0.3, 0.4, 0.4))
	created.Confidence, created.OriginalConfidence = 1, 1
	created.Status = StatusUserCreated
	return Seed{
		Upload: Upload{ID: testUploadID},
		Detections: DetectionSet{
			det("1", LabelInstar2, box(0.1, 0.1, 0.2, 0.2)),
			det("2", LabelPupa, box(0.5, 0.5, 0.7, 0.8)),
			created,
		},
	}
}

func TestCoordinator_CountsOnlyResultRefusesSavesUntilReconciled(t *testing.T) {
	s := twoDetectionStore(t)
	added, err := s.AddDetection(NewDetectionInput{Label: LabelPupa, Box: box(0.3, 0.3, 0.4, 0.4)})
	require.NoError(t, err)

	var calls []Changeset
	c := newTestCoordinator(t, s, countsOnly(&calls), nil)

	out, err := c.Save(context.Background())
	require.ErrorIs(t, err, ErrUnresolvedIDs)
	assert.Equal(t, SaveSucceeded, out.Status)
	assert.Equal(t, []string{added.ID}, s.Unresolved())

	// an edit to the created row must not be sent under its local id
	_, err = s.UpdateDetection(added.ID, Patch{Label: labelPtr(LabelAdult)})
	require.NoError(t, err)
	out, err = c.Save(context.Background())
	var uerr *UnresolvedIDsError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{added.ID}, uerr.IDs)
	assert.Equal(t, SaveRejected, out.Status)
	assert.Len(t, calls, 1)
	assert.True(t, s.IsDirty())

	// a seed without the created row leaves it unresolved
	stale := serverSeed()
	stale.Detections = stale.Detections[:2]
	require.ErrorIs(t, s.Reconcile(stale), ErrUnresolvedIDs)
	assert.Equal(t, []string{added.ID}, s.Unresolved())

	require.NoError(t, s.Reconcile(serverSeed()))
	assert.Empty(t, s.Unresolved())
	_, ok := s.Baseline().Get("3")
	assert.True(t, ok)
	got, ok := s.Get("3")
	require.True(t, ok)
	assert.Equal(t, LabelAdult, got.Label)

	out, err = c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveSucceeded, out.Status)
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].Added)
	require.Len(t, calls[1].Modified, 1)
	assert.Equal(t, "3", calls[1].Modified[0].ID)
	assert.Equal(t, LabelAdult, calls[1].Modified[0].Label)
	assert.False(t, s.IsDirty())
}

func TestCoordinator_CountsOnlyResultReconcilesFromSeedLoader(t *testing.T) {
	s := twoDetectionStore(t)
	added, err := s.AddDetection(NewDetectionInput{Label: LabelPupa, Box: box(0.3, 0.3, 0.4, 0.4)})
	require.NoError(t, err)
	require.NoError(t, s.SetSelected(added.ID))

	var calls []Changeset
	loads := 0
	loader := SeedLoaderFunc(func(_ context.Context, uploadID string) (Seed, error) {
		loads++
		assert.Equal(t, testUploadID, uploadID)
		return serverSeed(), nil
	})
	c, err := NewCoordinator(s, countsOnly(&calls), WithSeedLoader(loader), WithCoordinatorLogger(quietLogger()))
	require.NoError(t, err)

	out, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveSucceeded, out.Status)
	assert.Equal(t, 1, loads)
	assert.Empty(t, s.Unresolved())
	assert.Equal(t, "3", s.Selected())
	_, ok := s.Get(added.ID)
	assert.False(t, ok)
	assert.False(t, s.IsDirty())
}

func TestCoordinator_SeedLoaderFailureKeepsSavesRefused(t *testing.T) {
	s := twoDetectionStore(t)
	_, err := s.AddDetection(NewDetectionInput{Label: LabelPupa, Box: box(0.3, 0.3, 0.4, 0.4)})
	require.NoError(t, err)

	var calls []Changeset
	loader := SeedLoaderFunc(func(context.Context, string) (Seed, error) {
		return Seed{}, errors.New("server unavailable")
	})
	c, err := NewCoordinator(s, countsOnly(&calls), WithSeedLoader(loader), WithCoordinatorLogger(quietLogger()))
	require.NoError(t, err)

	_, err = c.Save(context.Background())
	require.ErrorIs(t, err, ErrUnresolvedIDs)
	_, err = c.Save(context.Background())
	require.ErrorIs(t, err, ErrUnresolvedIDs)
	assert.Len(t, calls, 1)
}
