package tracker

import (
	"fmt"
	"sort"

	"redtrack/internal/model"
)

// Merger combines two independently collected histories for the same logical
// account into one consistent timeline. The merge is computed entirely in
// memory and committed atomically, so a failure during computation leaves
// both input stores unmodified.
//
// Tie-breaks are deterministic functions of the inputs, never of wall clock
// or iteration order: on a true tie the target store wins. Merging A into B
// and B into A therefore yield the same contents, though a different
// "winner" may supply a tied value.
type Merger struct {
	logger Logger
}

func NewMerger(logger Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge consolidates source into target in place.
func (m *Merger) Merge(source, target Store) error {
	merged, err := m.compute(source, target)
	if err != nil {
		return err
	}
	if err := target.CommitMerge(merged); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	m.logger.Info("merge committed",
		"snapshots", len(merged.Snapshots),
		"items", len(merged.Items))
	return nil
}

// MergeInto consolidates source and target into output, leaving both inputs
// unmodified. output must be a freshly initialized, empty store.
func (m *Merger) MergeInto(source, target, output Store) error {
	merged, err := m.compute(source, target)
	if err != nil {
		return err
	}
	if err := output.CommitMerge(merged); err != nil {
		return fmt.Errorf("committing merge to output: %w", err)
	}
	m.logger.Info("merge written to output",
		"snapshots", len(merged.Snapshots),
		"items", len(merged.Items))
	return nil
}

func (m *Merger) compute(source, target Store) (*History, error) {
	if err := checkAccountsMatch(source, target); err != nil {
		return nil, err
	}

	a, err := LoadHistory(source)
	if err != nil {
		return nil, fmt.Errorf("loading source history: %w", err)
	}
	b, err := LoadHistory(target)
	if err != nil {
		return nil, fmt.Errorf("loading target history: %w", err)
	}

	return mergeHistories(a, b), nil
}

// checkAccountsMatch verifies both stores track the same logical account(s).
// An empty store is compatible with anything.
func checkAccountsMatch(source, target Store) error {
	sa, err := source.Accounts()
	if err != nil {
		return fmt.Errorf("reading source accounts: %w", err)
	}
	ta, err := target.Accounts()
	if err != nil {
		return fmt.Errorf("reading target accounts: %w", err)
	}
	if len(sa) == 0 || len(ta) == 0 {
		return nil
	}
	if len(sa) != len(ta) {
		return fmt.Errorf("%w: source=%v target=%v", ErrAccountMismatch, sa, ta)
	}
	for i := range sa {
		if sa[i] != ta[i] {
			return fmt.Errorf("%w: source=%v target=%v", ErrAccountMismatch, sa, ta)
		}
	}
	return nil
}

// mergeHistories produces the consolidated history. a is the source, b the
// target; b wins all true ties.
func mergeHistories(a, b *History) *History {
	merged := &History{
		Snapshots: mergeSnapshots(a, b),
		Items:     mergeItems(a, b),
		Scores:    make(map[model.ItemKey][]model.ScoreEntry),
	}

	keys := make(map[model.ItemKey]bool)
	for k := range a.Scores {
		keys[k] = true
	}
	for k := range b.Scores {
		keys[k] = true
	}
	for k := range keys {
		merged.Scores[k] = mergeScoreSeries(a.Scores[k], b.Scores[k])
	}

	return merged
}

type snapshotKey struct {
	account    string
	observedAt int64
}

// mergeSnapshots unions account snapshots by (account, observed_at). On an
// exact timestamp collision with differing totals, the all-zero entry loses
// to the non-zero one; otherwise the entry from the store with the longer
// overall observation history wins, target on a tie.
func mergeSnapshots(a, b *History) []model.AccountSnapshot {
	out := make(map[snapshotKey]model.AccountSnapshot, len(a.Snapshots)+len(b.Snapshots))
	for _, s := range b.Snapshots {
		out[snapshotKey{s.Account, s.ObservedAt.Unix()}] = s
	}

	aLonger := len(a.Snapshots) > len(b.Snapshots)
	for _, s := range a.Snapshots {
		k := snapshotKey{s.Account, s.ObservedAt.Unix()}
		existing, ok := out[k]
		if !ok {
			out[k] = s
			continue
		}
		if sameTotals(existing, s) {
			continue
		}
		if zeroTotals(existing) && !zeroTotals(s) {
			out[k] = s
			continue
		}
		if !zeroTotals(existing) && zeroTotals(s) {
			continue
		}
		if aLonger {
			out[k] = s
		}
	}

	result := make([]model.AccountSnapshot, 0, len(out))
	for _, s := range out {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Account != result[j].Account {
			return result[i].Account < result[j].Account
		}
		return result[i].ObservedAt.Before(result[j].ObservedAt)
	})
	return result
}

func sameTotals(x, y model.AccountSnapshot) bool {
	return x.PostKarma == y.PostKarma &&
		x.CommentKarma == y.CommentKarma &&
		x.TotalKarma == y.TotalKarma
}

func zeroTotals(s model.AccountSnapshot) bool {
	return s.PostKarma == 0 && s.CommentKarma == 0 && s.TotalKarma == 0
}

// mergeItems unions items by (type, natural_id). When both stores know an
// item, write-once fields come from the earlier first observation, mutable
// fields from the later last observation, and a non-empty image path is
// preferred; the target wins every tie.
func mergeItems(a, b *History) []model.Item {
	out := make(map[model.ItemKey]model.Item, len(a.Items)+len(b.Items))
	for _, item := range b.Items {
		out[item.Key()] = item
	}

	for _, src := range a.Items {
		tgt, ok := out[src.Key()]
		if !ok {
			out[src.Key()] = src
			continue
		}
		out[src.Key()] = mergeItem(src, tgt)
	}

	result := make([]model.Item, 0, len(out))
	for _, item := range out {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Type != result[j].Type {
			return result[i].Type < result[j].Type
		}
		return result[i].NaturalID < result[j].NaturalID
	})
	return result
}

// mergeItem combines two records of the same item. src is from the source
// store, tgt from the target.
func mergeItem(src, tgt model.Item) model.Item {
	merged := tgt

	// Write-once fields belong to the authoritative original observation.
	if src.CreatedAt.Before(tgt.CreatedAt) {
		merged.Account = src.Account
		merged.Subreddit = src.Subreddit
		merged.Title = src.Title
		merged.URL = src.URL
		merged.Permalink = src.Permalink
		merged.CreatedAt = src.CreatedAt
	}

	// Mutable fields belong to the later observation.
	if src.LastObservedAt.After(tgt.LastObservedAt) {
		merged.CurrentScore = src.CurrentScore
		merged.LastObservedAt = src.LastObservedAt
	}

	// Keep whichever image path exists; target on a double non-empty tie.
	if tgt.LocalImagePath == "" {
		merged.LocalImagePath = src.LocalImagePath
	}

	return merged
}

// mergeScoreSeries interleaves two per-item score sequences by observed_at,
// with the target's value winning same-timestamp collisions, then re-applies
// the de-duplication rule across the merged sequence: a run of consecutive
// equal-score entries collapses to its first entry. The output satisfies the
// same invariant fresh reconciliation would produce, regardless of how the
// inputs were collected.
func mergeScoreSeries(src, tgt []model.ScoreEntry) []model.ScoreEntry {
	byTime := make(map[int64]model.ScoreEntry, len(src)+len(tgt))
	for _, e := range src {
		byTime[e.ObservedAt.Unix()] = e
	}
	for _, e := range tgt {
		byTime[e.ObservedAt.Unix()] = e
	}

	union := make([]model.ScoreEntry, 0, len(byTime))
	for _, e := range byTime {
		union = append(union, e)
	}
	sort.Slice(union, func(i, j int) bool {
		return union[i].ObservedAt.Before(union[j].ObservedAt)
	})

	return dedupeScores(union)
}

// dedupeScores drops entries whose score equals the previously kept entry's.
// Input must be sorted by observed_at ascending.
func dedupeScores(entries []model.ScoreEntry) []model.ScoreEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if len(out) > 0 && out[len(out)-1].Score == e.Score {
			continue
		}
		out = append(out, e)
	}
	return out
}
