package testutil

import (
	"context"
	"errors"
	"sync"

	"redtrack/internal/model"
)

// StubFetcher returns queued snapshots in order, then repeats the last one.
// Safe for concurrent use.
type StubFetcher struct {
	mu        sync.Mutex
	snapshots []*model.Snapshot
	err       error
	calls     int
}

func NewStubFetcher(snapshots ...*model.Snapshot) *StubFetcher {
	return &StubFetcher{snapshots: snapshots}
}

// FailingFetcher always returns the given error.
func FailingFetcher(err error) *StubFetcher {
	return &StubFetcher{err: err}
}

func (f *StubFetcher) Fetch(ctx context.Context, account string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.snapshots) == 0 {
		return nil, errors.New("stub fetcher: no snapshots queued")
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap, nil
}

// Calls reports how many times Fetch was invoked.
func (f *StubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
