package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/realtime"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Publisher receives session lifecycle events.
type Publisher interface {
	Broadcast(realtime.Event)
}

type nopPublisher struct{}

func (nopPublisher) Broadcast(realtime.Event) {}

// Session is one open editor: a store for one image plus its save
// coordinator. Sessions never share a store.
type Session struct {
	ID          string
	Store       *annotation.Store
	Coordinator *annotation.Coordinator
	OpenedAt    time.Time
}

func (s *Session) UploadID() string { return s.Store.Upload().ID }

// SessionOptions tunes a SessionService. Zero values pick defaults.
type SessionOptions struct {
	TTL         time.Duration
	Cleanup     time.Duration
	MaxHistory  int
	SaveTimeout time.Duration
	Observer    annotation.Observer
	Publisher   Publisher
	Logger      *slog.Logger
}

// SessionService keeps the open editor sessions. Idle sessions expire after
// the TTL; every access extends it.
type SessionService struct {
	sessions    *cache.Cache
	seeds       SeedSource
	persister   annotation.Persister
	ttl         time.Duration
	maxHistory  int
	saveTimeout time.Duration
	observer    annotation.Observer
	events      Publisher
	log         *slog.Logger
}

func NewSessionService(seeds SeedSource, persister annotation.Persister, opts SessionOptions) *SessionService {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Cleanup <= 0 {
		opts.Cleanup = 10 * time.Minute
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 30 * time.Second
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &SessionService{
		sessions:    cache.New(opts.TTL, opts.Cleanup),
		seeds:       seeds,
		persister:   persister,
		ttl:         opts.TTL,
		maxHistory:  opts.MaxHistory,
		saveTimeout: opts.SaveTimeout,
		observer:    opts.Observer,
		events:      opts.Publisher,
		log:         opts.Logger.With("component", "sessions"),
	}
	s.sessions.OnEvicted(s.onEvicted)
	return s
}

// Open loads the seed for uploadID and starts a new session on it.
func (s *SessionService) Open(ctx context.Context, uploadID string) (*Session, error) {
	seed, err := s.seeds.LoadSeed(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed for upload %s: %w", uploadID, err)
	}

	id := uuid.NewString()
	log := s.log.With("session_id", id)
	store, err := annotation.NewStore(seed,
		annotation.WithLogger(log),
		annotation.WithMaxHistory(s.maxHistory))
	if err != nil {
		return nil, err
	}
	coordinator, err := annotation.NewCoordinator(store, s.persister,
		annotation.WithObserver(s.observer),
		annotation.WithSeedLoader(s.seeds),
		annotation.WithCoordinatorLogger(log))
	if err != nil {
		return nil, err
	}

	sess := &Session{ID: id, Store: store, Coordinator: coordinator, OpenedAt: time.Now()}
	s.sessions.Set(id, sess, cache.DefaultExpiration)

	log.Info("session opened", "upload_id", seed.Upload.ID, "detections", len(seed.Detections))
	s.events.Broadcast(realtime.Event{
		Type:      realtime.EventSessionOpened,
		SessionID: id,
		UploadID:  seed.Upload.ID,
		Extra:     map[string]any{"detections": len(seed.Detections)},
	})
	return sess, nil
}

// Get returns a live session and extends its expiry.
func (s *SessionService) Get(id string) (*Session, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := v.(*Session)
	s.sessions.Set(id, sess, cache.DefaultExpiration)
	return sess, nil
}

// Close discards a session and its unsaved edits.
func (s *SessionService) Close(id string) error {
	if _, ok := s.sessions.Get(id); !ok {
		return ErrSessionNotFound
	}
	s.sessions.Delete(id)
	return nil
}

// Count returns the number of open sessions, expired ones included until
// the next cleanup.
func (s *SessionService) Count() int {
	return s.sessions.ItemCount()
}

// Save saves the session's pending changes. The save is bounded by the
// configured timeout; cancelling ctx aborts it.
func (s *SessionService) Save(ctx context.Context, id string) (annotation.SaveOutcome, error) {
	sess, err := s.Get(id)
	if err != nil {
		return annotation.SaveOutcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	outcome, err := sess.Coordinator.Save(ctx)
	event := realtime.Event{
		Type:      realtime.EventSessionSaved,
		SessionID: id,
		UploadID:  sess.UploadID(),
		Status:    string(outcome.Status),
		Extra: map[string]any{
			"created":  outcome.Result.Created,
			"updated":  outcome.Result.Updated,
			"deleted":  outcome.Result.Deleted,
			"verified": outcome.Result.Verified,
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	if outcome.Status != annotation.SaveNoop && outcome.Status != annotation.SaveRejected {
		s.events.Broadcast(event)
	}
	return outcome, err
}

// Reconcile reloads the upload and gives server ids to detections an
// earlier save created without reporting them.
func (s *SessionService) Reconcile(ctx context.Context, id string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	if len(sess.Store.Unresolved()) == 0 {
		return nil
	}
	seed, err := s.seeds.LoadSeed(ctx, sess.UploadID())
	if err != nil {
		return fmt.Errorf("failed to reload upload %s: %w", sess.UploadID(), err)
	}
	return sess.Store.Reconcile(seed)
}

func (s *SessionService) onEvicted(id string, v any) {
	sess, ok := v.(*Session)
	if !ok {
		return
	}
	if sess.Store.IsDirty() {
		s.log.Warn("session closed with unsaved changes", "session_id", id, "upload_id", sess.UploadID())
	} else {
		s.log.Info("session closed", "session_id", id, "upload_id", sess.UploadID())
	}
	s.events.Broadcast(realtime.Event{
		Type:      realtime.EventSessionClosed,
		SessionID: id,
		UploadID:  sess.UploadID(),
	})
}
