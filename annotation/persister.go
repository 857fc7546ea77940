package annotation

import "context"

// SaveResult is what the persistence boundary reports after applying a
// changeset. CreatedIDs maps each added detection's ClientRef to the id the
// server assigned, when the server reports it.
type SaveResult struct {
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Deleted    int               `json:"deleted"`
	Verified   int               `json:"verified"`
	CreatedIDs map[string]string `json:"createdIds,omitempty"`
}

// Persister applies a changeset to durable storage. The coordinator treats it
// as a black box: any error means nothing is assumed to have been saved.
// Aborting is cooperative. Implementations must return once ctx is done, or
// the pending save stays unresolved until they do.
type Persister interface {
	SaveChangeset(ctx context.Context, uploadID string, cs Changeset) (SaveResult, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, uploadID string, cs Changeset) (SaveResult, error)

func (f PersisterFunc) SaveChangeset(ctx context.Context, uploadID string, cs Changeset) (SaveResult, error) {
	return f(ctx, uploadID, cs)
}

// SeedLoader fetches the server's current view of an upload.
type SeedLoader interface {
	LoadSeed(ctx context.Context, uploadID string) (Seed, error)
}

// SeedLoaderFunc adapts a function to SeedLoader.
type SeedLoaderFunc func(ctx context.Context, uploadID string) (Seed, error)

func (f SeedLoaderFunc) LoadSeed(ctx context.Context, uploadID string) (Seed, error) {
	return f(ctx, uploadID)
}
