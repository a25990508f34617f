package tracker

import (
	"time"

	"redtrack/internal/model"
)

// Store is the persisted, append-mostly history for tracked accounts.
// Implementations must enforce the uniqueness invariants of the three
// time-keyed relations: one account snapshot per (account, observed_at),
// one item per (type, natural_id), one score entry per
// (type, natural_id, observed_at).
type Store interface {
	// Last-known-state reads used by the reconciliation engine.

	// LastAccountSnapshot returns the most recent snapshot for the account,
	// or nil if none has been recorded.
	LastAccountSnapshot(account string) (*model.AccountSnapshot, error)

	// KnownItem returns the stored item, or nil if it has never been seen.
	KnownItem(itemType model.ItemType, naturalID string) (*model.Item, error)

	// LastObservedScore returns the most recent score-history entry for the
	// item, or nil if the item has no history.
	LastObservedScore(itemType model.ItemType, naturalID string) (*model.ScoreEntry, error)

	// Fine-grained writes. Each runs in its own transaction; Apply is the
	// batch form used for a full poll.

	// AppendAccountSnapshot writes a snapshot row. Returns
	// ErrDuplicateTimestamp if (account, observed_at) already exists.
	AppendAccountSnapshot(s model.AccountSnapshot) error

	// UpsertItem inserts the item if its natural ID is unseen; otherwise it
	// updates only current_score, last_observed_at, and local_image_path
	// (when the stored path is empty), leaving write-once fields untouched.
	UpsertItem(item model.Item) error

	// AppendScoreHistory writes a score-history entry. Returns
	// ErrDuplicateTimestamp if (type, natural_id, observed_at) exists.
	AppendScoreHistory(e model.ScoreEntry) error

	// Apply executes all of one poll's writes as a single atomic unit:
	// either every write succeeds or none are visible.
	Apply(cs *ChangeSet) error

	// History reads used by the merge engine and the dashboard.

	// Accounts returns all accounts present in the store, sorted.
	Accounts() ([]string, error)

	// AccountSnapshots returns the account's snapshots ordered by
	// observed_at ascending.
	AccountSnapshots(account string) ([]model.AccountSnapshot, error)

	// AccountSnapshotsRange returns snapshots with from <= observed_at <= to,
	// ordered ascending.
	AccountSnapshotsRange(account string, from, to time.Time) ([]model.AccountSnapshot, error)

	// Items returns the account's items, posts and comments both, ordered by
	// created_at descending.
	Items(account string) ([]model.Item, error)

	// ScoreHistory returns the item's score entries ordered by observed_at
	// ascending.
	ScoreHistory(itemType model.ItemType, naturalID string) ([]model.ScoreEntry, error)

	// CommitMerge atomically writes a consolidated history produced by the
	// merge engine. Snapshots and items are upserted to the merged values;
	// each item's score sequence is replaced with the merged, de-duplicated
	// sequence. A failure leaves the store unmodified.
	CommitMerge(h *History) error

	// SetItemImagePath records an archived media path for an item, only if
	// the item has no path yet. Called asynchronously by the media archiver.
	SetItemImagePath(itemType model.ItemType, naturalID string, path string) error

	// Operation bookkeeping.

	CreatePollRun(account, operation string, startedAt time.Time) (int64, error)
	FinishPollRun(id int64, finishedAt time.Time, status string) error
	ListPollRuns(limit int) ([]model.PollRun, error)

	// Close closes the underlying storage.
	Close() error
}

// ItemUpdate carries the mutable-field refresh for a re-observed item.
type ItemUpdate struct {
	Type       model.ItemType
	NaturalID  string
	Score      int64
	ObservedAt time.Time
}

// ChangeSet is the minimal set of writes one reconciliation run produces.
// It is computed against the store's last-known state and applied atomically.
type ChangeSet struct {
	Account  string
	Snapshot *model.AccountSnapshot // nil when no snapshot row is due
	NewItems []model.Item           // first sightings, inserted whole
	Updates  []ItemUpdate           // score/last-observed refreshes
	Scores   []model.ScoreEntry     // score-history entries, changes only
}

// Empty reports whether the change set contains no writes.
func (cs *ChangeSet) Empty() bool {
	return cs.Snapshot == nil && len(cs.NewItems) == 0 && len(cs.Updates) == 0 && len(cs.Scores) == 0
}

// History is a full in-memory copy of one store's contents. The merge engine
// loads both inputs into History values, merges them, and commits the result;
// it is the staging buffer that keeps merge computation off the live stores.
type History struct {
	Snapshots []model.AccountSnapshot
	Items     []model.Item
	Scores    map[model.ItemKey][]model.ScoreEntry // time-ascending per item
}

// LoadHistory reads a store's entire contents into memory.
func LoadHistory(s Store) (*History, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return nil, err
	}

	h := &History{Scores: make(map[model.ItemKey][]model.ScoreEntry)}
	for _, account := range accounts {
		snaps, err := s.AccountSnapshots(account)
		if err != nil {
			return nil, err
		}
		h.Snapshots = append(h.Snapshots, snaps...)

		items, err := s.Items(account)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			h.Items = append(h.Items, item)
			scores, err := s.ScoreHistory(item.Type, item.NaturalID)
			if err != nil {
				return nil, err
			}
			h.Scores[item.Key()] = scores
		}
	}
	return h, nil
}
