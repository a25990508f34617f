package tracker

import (
	"context"

	"redtrack/internal/model"
)

// Fetcher produces a snapshot of an account's current upstream state.
// Implementations own all network concerns: a Fetch either returns a complete
// snapshot or an error wrapping ErrFetchFailed, never a partial result.
type Fetcher interface {
	Fetch(ctx context.Context, account string) (*model.Snapshot, error)
}

// Archiver persists a local copy of an item's media asynchronously.
// Enqueue must not block; the archiver reports the stored path back to the
// store on its own schedule.
type Archiver interface {
	Enqueue(item model.Item)
}

// NopArchiver discards all archive requests.
type NopArchiver struct{}

func (NopArchiver) Enqueue(model.Item) {}
