package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"redtrack/internal/model"
)

// TrackerService is the orchestration layer that runs poll cycles and merges.
// It enforces the single-writer-per-account model: at most one poll or merge
// is in flight for a given account, via a per-account mutex rather than a
// global lock, so different accounts proceed fully in parallel.
type TrackerService struct {
	store      Store
	fetcher    Fetcher
	archiver   Archiver
	reconciler *Reconciler
	merger     *Merger
	clock      Clock
	logger     Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTrackerService creates a TrackerService with the provided dependencies.
// minSnapshotInterval bounds no-change account snapshot sampling.
func NewTrackerService(store Store, fetcher Fetcher, archiver Archiver, clock Clock, logger Logger, minSnapshotInterval time.Duration) *TrackerService {
	return &TrackerService{
		store:      store,
		fetcher:    fetcher,
		archiver:   archiver,
		reconciler: NewReconciler(store, minSnapshotInterval, logger),
		merger:     NewMerger(logger),
		clock:      clock,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex guarding the account's exclusive section.
func (s *TrackerService) accountLock(account string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[account]
	if !ok {
		l = &sync.Mutex{}
		s.locks[account] = l
	}
	return l
}

// Poll runs one monitoring cycle for the account: fetch the current state,
// reconcile it against the store, and hand newly-seen media to the archiver.
// The fetch happens before the account's exclusive section is entered, so
// the critical section never blocks on network I/O. A fetch failure skips
// the poll entirely; a failed apply leaves the store untouched and the poll
// is safe to retry in full.
func (s *TrackerService) Poll(ctx context.Context, account string) (*ChangeSet, error) {
	snap, err := s.fetcher.Fetch(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = s.clock.Now().UTC().Truncate(time.Second)
	}

	lock := s.accountLock(account)
	lock.Lock()
	defer lock.Unlock()

	runID, err := s.store.CreatePollRun(account, "Poll", s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("recording poll run: %w", err)
	}

	cs, err := s.reconciler.Reconcile(snap)
	status := "success"
	if err != nil {
		status = "error"
	}
	if finishErr := s.store.FinishPollRun(runID, s.clock.Now(), status); finishErr != nil {
		s.logger.Warn("finishing poll run", "error", finishErr)
	}
	if err != nil {
		return nil, err
	}

	for _, item := range cs.NewItems {
		if HasImageURL(item) {
			s.archiver.Enqueue(item)
		}
	}

	return cs, nil
}

// Merge consolidates source into this service's store for the same logical
// account. The account's exclusive section covers the whole merge.
func (s *TrackerService) Merge(source Store) error {
	accounts, err := s.store.Accounts()
	if err != nil {
		return fmt.Errorf("reading accounts: %w", err)
	}
	for _, account := range accounts {
		lock := s.accountLock(account)
		lock.Lock()
		defer lock.Unlock()
	}

	runID, err := s.store.CreatePollRun("", "Merge", s.clock.Now())
	if err != nil {
		return fmt.Errorf("recording merge run: %w", err)
	}

	err = s.merger.Merge(source, s.store)
	status := "success"
	if err != nil {
		status = "error"
	}
	if finishErr := s.store.FinishPollRun(runID, s.clock.Now(), status); finishErr != nil {
		s.logger.Warn("finishing merge run", "error", finishErr)
	}
	return err
}

// AccountStats summarizes an account's tracked history.
type AccountStats struct {
	Account       string
	LastChecked   time.Time
	PostKarma     int64
	CommentKarma  int64
	TotalKarma    int64
	KarmaDelta24h *int64 // nil when less than 24h of history exists
	Posts         int
	Comments      int
	Images        int
	Snapshots     int
}

// Stats computes the current statistics for an account, or nil if the
// account has never been polled.
func (s *TrackerService) Stats(account string) (*AccountStats, error) {
	last, err := s.store.LastAccountSnapshot(account)
	if err != nil {
		return nil, fmt.Errorf("reading last snapshot: %w", err)
	}
	if last == nil {
		return nil, nil
	}

	stats := &AccountStats{
		Account:      account,
		LastChecked:  last.ObservedAt,
		PostKarma:    last.PostKarma,
		CommentKarma: last.CommentKarma,
		TotalKarma:   last.TotalKarma,
	}

	dayAgo := last.ObservedAt.Add(-24 * time.Hour)
	window, err := s.store.AccountSnapshotsRange(account, dayAgo, last.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot window: %w", err)
	}
	if len(window) > 1 {
		delta := last.TotalKarma - window[0].TotalKarma
		stats.KarmaDelta24h = &delta
	}

	items, err := s.store.Items(account)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	for _, item := range items {
		switch item.Type {
		case model.ItemTypePost:
			stats.Posts++
		case model.ItemTypeComment:
			stats.Comments++
		}
		if item.LocalImagePath != "" {
			stats.Images++
		}
	}

	snaps, err := s.store.AccountSnapshots(account)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	stats.Snapshots = len(snaps)

	return stats, nil
}

// History returns the most recent poll/merge runs.
func (s *TrackerService) History(limit int) ([]model.PollRun, error) {
	return s.store.ListPollRuns(limit)
}
