package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SaveStatus is how a save attempt ended.
type SaveStatus string

const (
	SaveNoop      SaveStatus = "noop"
	SaveSucceeded SaveStatus = "success"
	SaveFailed    SaveStatus = "failed"
	SaveAborted   SaveStatus = "aborted"
	SaveRejected  SaveStatus = "busy"
)

// SaveOutcome describes a finished save.
type SaveOutcome struct {
	Status    SaveStatus `json:"status"`
	Changeset Changeset  `json:"changeset"`
	Result    SaveResult `json:"result"`
}

// Observer is notified about save attempts, e.g. to export metrics.
type Observer interface {
	SaveStarted(uploadID string, cs Changeset)
	SaveFinished(uploadID string, status SaveStatus, cs Changeset, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SaveStarted(string, Changeset)                             {}
func (nopObserver) SaveFinished(string, SaveStatus, Changeset, time.Duration) {}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithObserver registers an observer for save attempts.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSeedLoader lets the coordinator reload the upload when a save does not
// report server ids for the detections it created.
func WithSeedLoader(l SeedLoader) CoordinatorOption {
	return func(c *Coordinator) {
		c.seeds = l
	}
}

// Coordinator saves a Store's changes through a Persister. At most one save
// per store is in flight; a second request is rejected, not queued.
type Coordinator struct {
	store     *Store
	persister Persister
	seeds     SeedLoader
	observer  Observer
	log       *slog.Logger
}

// NewCoordinator binds a store to the persistence boundary.
func NewCoordinator(store *Store, p Persister, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if p == nil {
		return nil, errors.New("persister is required")
	}
	c := &Coordinator{
		store:     store,
		persister: p,
		observer:  nopObserver{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("upload_id", store.upload.ID)
	return c, nil
}

// PendingSave is a save that has been dispatched. Edits to the store remain
// possible while it is pending; they are not part of its changeset.
type PendingSave struct {
	changeset Changeset
	done      chan struct{}
	outcome   SaveOutcome
	err       error
}

// Changeset is what was sent to the persistence boundary.
func (p *PendingSave) Changeset() Changeset { return p.changeset }

// Done is closed once the save has resolved.
func (p *PendingSave) Done() <-chan struct{} { return p.done }

// Wait blocks until the save resolves.
func (p *PendingSave) Wait() (SaveOutcome, error) {
	<-p.done
	return p.outcome, p.err
}

// Start diffs the working set against the baseline and dispatches the
// changeset. It fails immediately with ErrConcurrentSave when another save
// is pending, and with an *UnresolvedIDsError while an earlier save's created
// detections still lack server ids. An empty changeset resolves at once as a no-op without
// calling the persister. Cancelling ctx aborts the dispatch.
func (c *Coordinator) Start(ctx context.Context) (*PendingSave, error) {
	uploadID := c.store.upload.ID
	working, baseline, err := c.store.beginSave()
	if err != nil {
		c.log.Warn("save rejected", "error", err)
		c.observer.SaveFinished(uploadID, SaveRejected, Changeset{UploadID: uploadID}, 0)
		return nil, err
	}

	cs := Diff(working, baseline, uploadID)
	p := &PendingSave{changeset: cs, done: make(chan struct{})}
	if cs.IsEmpty() {
		c.store.endSave(nil, nil, false)
		p.outcome = SaveOutcome{Status: SaveNoop, Changeset: cs}
		close(p.done)
		c.log.Debug("nothing to save")
		c.observer.SaveFinished(uploadID, SaveNoop, cs, 0)
		return p, nil
	}

	c.log.Info("dispatching changeset",
		"added", len(cs.Added), "modified", len(cs.Modified), "deleted", len(cs.Deleted))
	c.observer.SaveStarted(uploadID, cs)
	go c.dispatch(ctx, p, working)
	return p, nil
}

// Save is Start followed by Wait.
func (c *Coordinator) Save(ctx context.Context) (SaveOutcome, error) {
	p, err := c.Start(ctx)
	if err != nil {
		return SaveOutcome{Status: SaveRejected}, err
	}
	return p.Wait()
}

func (c *Coordinator) dispatch(ctx context.Context, p *PendingSave, dispatched DetectionSet) {
	defer close(p.done)
	uploadID := c.store.upload.ID
	start := time.Now()

	res, err := c.persister.SaveChangeset(ctx, uploadID, p.changeset)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		unresolved := c.store.endSave(dispatched, res.CreatedIDs, true)
		p.outcome = SaveOutcome{Status: SaveSucceeded, Changeset: p.changeset, Result: res}
		c.log.Info("changeset saved",
			"created", res.Created, "updated", res.Updated, "deleted", res.Deleted,
			"verified", res.Verified, "elapsed", elapsed)
		if len(unresolved) > 0 {
			p.err = c.reconcile(ctx, uploadID, unresolved)
		}
	case ctx.Err() != nil:
		c.store.endSave(nil, nil, false)
		p.outcome = SaveOutcome{Status: SaveAborted, Changeset: p.changeset}
		p.err = fmt.Errorf("%w: %w", ErrSaveAborted, context.Cause(ctx))
		c.log.Warn("save aborted", "error", err)
	default:
		c.store.endSave(nil, nil, false)
		p.outcome = SaveOutcome{Status: SaveFailed, Changeset: p.changeset}
		p.err = &PersistenceError{UploadID: uploadID, Err: err}
		c.log.Error("save failed, edits kept for retry", "error", err)
	}
	c.observer.SaveFinished(uploadID, p.outcome.Status, p.changeset, elapsed)
}

// reconcile resolves created detections the persister did not report ids
// for. Without a seed loader, or when reloading fails, the store keeps
// refusing saves until Store.Reconcile succeeds.
func (c *Coordinator) reconcile(ctx context.Context, uploadID string, unresolved []string) error {
	c.log.Warn("save reported no server id for created detections", "detection_ids", unresolved)
	if c.seeds == nil {
		return &UnresolvedIDsError{UploadID: uploadID, IDs: unresolved}
	}
	seed, err := c.seeds.LoadSeed(ctx, uploadID)
	if err != nil {
		c.log.Error("failed to reload upload after save", "error", err)
		return &UnresolvedIDsError{UploadID: uploadID, IDs: unresolved}
	}
	return c.store.Reconcile(seed)
}
