package tracker

import (
	"fmt"
	"time"

	"redtrack/internal/model"
)

// Reconciler is the diff-and-append engine run on every poll. Given a fresh
// snapshot and the store's last-known state it computes the minimal set of
// writes: a new account snapshot row (totals changed, or the sampling
// interval elapsed), newly-seen items, and score-history entries only for
// items whose score changed since last observation.
//
// Reconciling the same snapshot against an already-reconciled store produces
// an empty change set, so retries after a failed atomic apply are safe.
type Reconciler struct {
	store       Store
	minInterval time.Duration // min spacing between no-change snapshots
	logger      Logger
}

// NewReconciler creates a Reconciler. minInterval bounds how often a
// snapshot row is written when the account's totals have not changed.
func NewReconciler(store Store, minInterval time.Duration, logger Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		minInterval: minInterval,
		logger:      logger,
	}
}

// Reconcile plans the writes for the snapshot and applies them atomically.
// Returns the applied change set.
func (r *Reconciler) Reconcile(snap *model.Snapshot) (*ChangeSet, error) {
	cs, err := r.Plan(snap)
	if err != nil {
		return nil, err
	}

	if cs.Empty() {
		r.logger.Debug("reconcile: no changes", "account", snap.Account)
		return cs, nil
	}

	if err := r.store.Apply(cs); err != nil {
		return nil, fmt.Errorf("applying changes: %w", err)
	}

	r.logger.Info("reconciled",
		"account", snap.Account,
		"snapshot", cs.Snapshot != nil,
		"new_items", len(cs.NewItems),
		"score_changes", len(cs.Scores))
	return cs, nil
}

// Plan computes the change set for the snapshot without writing anything.
func (r *Reconciler) Plan(snap *model.Snapshot) (*ChangeSet, error) {
	cs := &ChangeSet{Account: snap.Account}

	due, err := r.snapshotDue(snap)
	if err != nil {
		return nil, err
	}
	if due {
		cs.Snapshot = &model.AccountSnapshot{
			Account:      snap.Account,
			ObservedAt:   snap.ObservedAt,
			PostKarma:    snap.Totals.Post,
			CommentKarma: snap.Totals.Comment,
			TotalKarma:   snap.Totals.Total,
		}
	}

	for _, observed := range snap.Items {
		if err := r.planItem(cs, snap, observed); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

// snapshotDue decides whether this poll writes an account snapshot row.
// Always on first sight and on changed totals; otherwise only once the
// minimum sampling interval has elapsed, so no-change plateaus still get
// sampled without growing a row per poll.
func (r *Reconciler) snapshotDue(snap *model.Snapshot) (bool, error) {
	last, err := r.store.LastAccountSnapshot(snap.Account)
	if err != nil {
		return false, fmt.Errorf("reading last account snapshot: %w", err)
	}
	if last == nil {
		return true, nil
	}
	// Re-running an old or identical snapshot must be a no-op.
	if !snap.ObservedAt.After(last.ObservedAt) {
		return false, nil
	}
	if last.PostKarma != snap.Totals.Post ||
		last.CommentKarma != snap.Totals.Comment ||
		last.TotalKarma != snap.Totals.Total {
		return true, nil
	}
	return snap.ObservedAt.Sub(last.ObservedAt) >= r.minInterval, nil
}

func (r *Reconciler) planItem(cs *ChangeSet, snap *model.Snapshot, observed model.ObservedItem) error {
	known, err := r.store.KnownItem(observed.Type, observed.NaturalID)
	if err != nil {
		return fmt.Errorf("reading item %s/%s: %w", observed.Type, observed.NaturalID, err)
	}

	if known == nil {
		// First sighting: insert the item and its first score point.
		cs.NewItems = append(cs.NewItems, model.Item{
			Type:           observed.Type,
			NaturalID:      observed.NaturalID,
			Account:        snap.Account,
			Subreddit:      observed.Subreddit,
			Title:          observed.Title,
			URL:            observed.URL,
			Permalink:      observed.Permalink,
			CreatedAt:      observed.CreatedAt,
			CurrentScore:   observed.Score,
			LastObservedAt: snap.ObservedAt,
		})
		cs.Scores = append(cs.Scores, model.ScoreEntry{
			ItemType:   observed.Type,
			NaturalID:  observed.NaturalID,
			ObservedAt: snap.ObservedAt,
			Score:      observed.Score,
		})
		return nil
	}

	lastScore, err := r.store.LastObservedScore(observed.Type, observed.NaturalID)
	if err != nil {
		return fmt.Errorf("reading last score %s/%s: %w", observed.Type, observed.NaturalID, err)
	}

	changed := lastScore == nil || lastScore.Score != observed.Score
	if changed {
		if lastScore != nil && !snap.ObservedAt.After(lastScore.ObservedAt) {
			// Stale or replayed snapshot; the stored head stays authoritative.
			return nil
		}
		cs.Updates = append(cs.Updates, ItemUpdate{
			Type:       observed.Type,
			NaturalID:  observed.NaturalID,
			Score:      observed.Score,
			ObservedAt: snap.ObservedAt,
		})
		cs.Scores = append(cs.Scores, model.ScoreEntry{
			ItemType:   observed.Type,
			NaturalID:  observed.NaturalID,
			ObservedAt: snap.ObservedAt,
			Score:      observed.Score,
		})
		return nil
	}

	// Unchanged score: refresh last_observed_at only, no history row.
	if snap.ObservedAt.After(known.LastObservedAt) {
		cs.Updates = append(cs.Updates, ItemUpdate{
			Type:       observed.Type,
			NaturalID:  observed.NaturalID,
			Score:      observed.Score,
			ObservedAt: snap.ObservedAt,
		})
	}
	return nil
}
