package vectorstore

import "context"

// Store persists exactly one index at a fixed location. Persist replaces
// whatever was there; a concurrent Load observes either the old or the new
// index, never a mix.
type Store interface {
	Location() string
	Persist(ctx context.Context, idx *Index) error
	// Load returns domain.ErrIndexNotFound when nothing has been persisted
	// and domain.ErrIndexCorrupt when the stored data cannot be read.
	Load(ctx context.Context) (*Index, error)
}
