package model

import "time"

// ItemType distinguishes the two kinds of tracked items.
type ItemType string

const (
	ItemTypePost    ItemType = "post"
	ItemTypeComment ItemType = "comment"
)

// AccountSnapshot is one point-in-time observation of an account's karma totals.
// At most one snapshot exists per (Account, ObservedAt); rows are immutable.
type AccountSnapshot struct {
	Account      string
	ObservedAt   time.Time
	PostKarma    int64
	CommentKarma int64
	TotalKarma   int64
}

// Item is a tracked post or comment. The (Type, NaturalID) pair is the
// platform's permanent identifier and the merge/dedup key. CurrentScore and
// LastObservedAt change on every poll that re-observes the item; everything
// else is write-once at first observation. LocalImagePath is filled in later
// by the media archiver, if the item has downloadable media.
type Item struct {
	Type           ItemType
	NaturalID      string
	Account        string
	Subreddit      string
	Title          string // post title, or comment body excerpt
	URL            string // link/media URL (posts only)
	Permalink      string
	CreatedAt      time.Time
	CurrentScore   int64
	LastObservedAt time.Time
	LocalImagePath string
}

// Key returns the item's merge key.
func (i *Item) Key() ItemKey {
	return ItemKey{Type: i.Type, NaturalID: i.NaturalID}
}

// ItemKey identifies an item across stores.
type ItemKey struct {
	Type      ItemType
	NaturalID string
}

// ScoreEntry is one point in an item's score-over-time series. Entries are
// append-only and written only when the score differs from the item's most
// recent prior entry.
type ScoreEntry struct {
	ItemType   ItemType
	NaturalID  string
	ObservedAt time.Time
	Score      int64
}

// KarmaTotals holds the account-level totals returned by a fetch.
type KarmaTotals struct {
	Post    int64
	Comment int64
	Total   int64
}

// ObservedItem is one item as seen in a single fetch.
type ObservedItem struct {
	Type      ItemType
	NaturalID string
	Subreddit string
	Title     string
	URL       string
	Permalink string
	CreatedAt time.Time
	Score     int64
}

// Snapshot is one poll's fetched view of an account: totals plus the current
// item list with scores. Pure data; produced by the fetch client, stamped
// with ObservedAt by the service, and consumed by the reconciliation engine.
type Snapshot struct {
	Account    string
	ObservedAt time.Time
	Totals     KarmaTotals
	Items      []ObservedItem
}

// PollRun records one mutating operation (poll or merge) for bookkeeping.
type PollRun struct {
	ID         int64
	Account    string
	Operation  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "success" or "error"
}
