package tracker_test

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"redtrack/internal/model"
	"redtrack/internal/testutil"
	"redtrack/internal/tracker"
)

// seedStore runs a reconciliation for each snapshot, building up real store
// contents the way polling would.
func seedStore(t *testing.T, s tracker.Store, snaps ...*model.Snapshot) {
	t.Helper()
	r := tracker.NewReconciler(s, 30*time.Minute, tracker.NewNopLogger())
	for _, snap := range snaps {
		if _, err := r.Reconcile(snap); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}
}

func TestMerger_Merge(t *testing.T) {
	t.Run("merges overlapping score histories", func(t *testing.T) {
		// Source saw the score change 5 -> 9; target started observing later
		// and only ever saw 9. The merged history is the canonical [5, 9].
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, source,
			snapshot(0, 100, post("p1", 5)),
			snapshot(10, 104, post("p1", 9)))
		seedStore(t, target,
			snapshot(10, 104, post("p1", 9)),
			snapshot(20, 104, post("p1", 9)))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.Merge(source, target); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		scores, err := target.ScoreHistory(model.ItemTypePost, "p1")
		if err != nil {
			t.Fatalf("ScoreHistory() error = %v", err)
		}
		if len(scores) != 2 {
			t.Fatalf("merged score history = %d entries, want 2", len(scores))
		}
		if scores[0].Score != 5 || !scores[0].ObservedAt.Equal(at(0)) {
			t.Errorf("first entry = %d@%v, want 5@%v", scores[0].Score, scores[0].ObservedAt, at(0))
		}
		if scores[1].Score != 9 || !scores[1].ObservedAt.Equal(at(10)) {
			t.Errorf("second entry = %d@%v, want 9@%v", scores[1].Score, scores[1].ObservedAt, at(10))
		}
	})

	t.Run("unions account snapshots", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, source, snapshot(0, 100), snapshot(40, 110))
		seedStore(t, target, snapshot(20, 105))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.Merge(source, target); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		snaps, err := target.AccountSnapshots("alice")
		if err != nil {
			t.Fatalf("AccountSnapshots() error = %v", err)
		}
		if len(snaps) != 3 {
			t.Fatalf("merged snapshots = %d, want 3", len(snaps))
		}
		totals := []int64{snaps[0].TotalKarma, snaps[1].TotalKarma, snaps[2].TotalKarma}
		if totals[0] != 100 || totals[1] != 105 || totals[2] != 110 {
			t.Errorf("merged totals = %v, want [100 105 110]", totals)
		}
	})

	t.Run("items known to only one store survive", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, source, snapshot(0, 100, post("p1", 5)))
		seedStore(t, target, snapshot(10, 101, post("p2", 3)))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.Merge(source, target); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		items, err := target.Items("alice")
		if err != nil {
			t.Fatalf("Items() error = %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("merged items = %d, want 2", len(items))
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, source,
			snapshot(0, 100, post("p1", 5)),
			snapshot(10, 104, post("p1", 9)))
		seedStore(t, target, snapshot(20, 104, post("p1", 9)))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.Merge(source, target); err != nil {
			t.Fatalf("first Merge() error = %v", err)
		}

		snapsBefore, _ := target.AccountSnapshots("alice")
		scoresBefore, _ := target.ScoreHistory(model.ItemTypePost, "p1")

		if err := m.Merge(source, target); err != nil {
			t.Fatalf("second Merge() error = %v", err)
		}

		snapsAfter, _ := target.AccountSnapshots("alice")
		scoresAfter, _ := target.ScoreHistory(model.ItemTypePost, "p1")
		if len(snapsAfter) != len(snapsBefore) {
			t.Errorf("snapshots changed on re-merge: %d -> %d", len(snapsBefore), len(snapsAfter))
		}
		if len(scoresAfter) != len(scoresBefore) {
			t.Errorf("score history changed on re-merge: %d -> %d", len(scoresBefore), len(scoresAfter))
		}
	})

	t.Run("rejects mismatched accounts", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, source, snapshot(0, 100))
		bob := snapshot(0, 50)
		bob.Account = "bob"
		seedStore(t, target, bob)

		m := tracker.NewMerger(tracker.NewNopLogger())
		err := m.Merge(source, target)
		if !errors.Is(err, tracker.ErrAccountMismatch) {
			t.Fatalf("Merge() error = %v, want ErrAccountMismatch", err)
		}

		// Target must be untouched after a rejected merge.
		snaps, _ := target.AccountSnapshots("bob")
		if len(snaps) != 1 {
			t.Errorf("target snapshots = %d, want 1", len(snaps))
		}
	})

	t.Run("empty store merges into anything", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)

		seedStore(t, target, snapshot(0, 100, post("p1", 5)))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.Merge(source, target); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		snaps, _ := target.AccountSnapshots("alice")
		if len(snaps) != 1 {
			t.Errorf("target snapshots = %d, want 1", len(snaps))
		}
	})
}

// historyContents flattens a store's persisted history into a sorted,
// comparable form: snapshots, items, and per-item score series.
func historyContents(t *testing.T, s tracker.Store) []string {
	t.Helper()
	var out []string

	snaps, err := s.AccountSnapshots("alice")
	if err != nil {
		t.Fatalf("AccountSnapshots() error = %v", err)
	}
	for _, snap := range snaps {
		out = append(out, fmt.Sprintf("snapshot %s total=%d",
			snap.ObservedAt.UTC().Format(time.RFC3339), snap.TotalKarma))
	}

	items, err := s.Items("alice")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].NaturalID < items[j].NaturalID })
	for _, item := range items {
		out = append(out, fmt.Sprintf("item %s/%s score=%d observed=%s",
			item.Type, item.NaturalID, item.CurrentScore,
			item.LastObservedAt.UTC().Format(time.RFC3339)))

		entries, err := s.ScoreHistory(item.Type, item.NaturalID)
		if err != nil {
			t.Fatalf("ScoreHistory() error = %v", err)
		}
		for _, e := range entries {
			out = append(out, fmt.Sprintf("score %s/%s %s %d",
				item.Type, item.NaturalID, e.ObservedAt.UTC().Format(time.RFC3339), e.Score))
		}
	}
	return out
}

func TestMerger_Associativity(t *testing.T) {
	// Three independently grown histories with overlapping observations of
	// p1 and p2. Merging them pairwise in different orders must converge on
	// the same final contents.
	newStores := func(t *testing.T) (a, b, c tracker.Store) {
		a = testutil.NewTestStore(t)
		seedStore(t, a,
			snapshot(0, 100, post("p1", 5)),
			snapshot(10, 104, post("p1", 9)))
		b = testutil.NewTestStore(t)
		seedStore(t, b,
			snapshot(10, 104, post("p1", 9), post("p2", 3)),
			snapshot(20, 108, post("p2", 7)))
		c = testutil.NewTestStore(t)
		seedStore(t, c,
			snapshot(20, 108, post("p2", 7)),
			snapshot(30, 108, post("p1", 9)))
		return a, b, c
	}

	m := tracker.NewMerger(tracker.NewNopLogger())

	a1, b1, c1 := newStores(t)
	if err := m.Merge(a1, b1); err != nil {
		t.Fatalf("Merge(a, b) error = %v", err)
	}
	if err := m.Merge(b1, c1); err != nil {
		t.Fatalf("Merge(b, c) error = %v", err)
	}

	a2, b2, c2 := newStores(t)
	if err := m.Merge(c2, a2); err != nil {
		t.Fatalf("Merge(c, a) error = %v", err)
	}
	if err := m.Merge(a2, b2); err != nil {
		t.Fatalf("Merge(a, b) error = %v", err)
	}

	first := historyContents(t, c1)
	second := historyContents(t, b2)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("merge order changed final contents:\nfirst order:  %v\nsecond order: %v", first, second)
	}

	// Sanity-check the converged contents themselves: both consecutive
	// duplicate observations collapsed.
	p1, err := c1.ScoreHistory(model.ItemTypePost, "p1")
	if err != nil {
		t.Fatalf("ScoreHistory(p1) error = %v", err)
	}
	if len(p1) != 2 || p1[0].Score != 5 || p1[1].Score != 9 {
		t.Errorf("p1 history = %+v, want [5, 9]", p1)
	}
	p2, err := c1.ScoreHistory(model.ItemTypePost, "p2")
	if err != nil {
		t.Fatalf("ScoreHistory(p2) error = %v", err)
	}
	if len(p2) != 2 || p2[0].Score != 3 || p2[1].Score != 7 {
		t.Errorf("p2 history = %+v, want [3, 7]", p2)
	}
}

func TestMerger_MergeInto(t *testing.T) {
	t.Run("inputs stay unmodified", func(t *testing.T) {
		source := testutil.NewTestStore(t)
		target := testutil.NewTestStore(t)
		output := testutil.NewTestStore(t)

		seedStore(t, source, snapshot(0, 100, post("p1", 5)))
		seedStore(t, target, snapshot(10, 104, post("p1", 9)))

		m := tracker.NewMerger(tracker.NewNopLogger())
		if err := m.MergeInto(source, target, output); err != nil {
			t.Fatalf("MergeInto() error = %v", err)
		}

		srcSnaps, _ := source.AccountSnapshots("alice")
		tgtSnaps, _ := target.AccountSnapshots("alice")
		outSnaps, _ := output.AccountSnapshots("alice")
		if len(srcSnaps) != 1 || len(tgtSnaps) != 1 {
			t.Errorf("inputs modified: source=%d target=%d, want 1 each", len(srcSnaps), len(tgtSnaps))
		}
		if len(outSnaps) != 2 {
			t.Errorf("output snapshots = %d, want 2", len(outSnaps))
		}

		scores, err := output.ScoreHistory(model.ItemTypePost, "p1")
		if err != nil {
			t.Fatalf("ScoreHistory() error = %v", err)
		}
		if len(scores) != 2 {
			t.Errorf("output score history = %d, want 2", len(scores))
		}
	})
}
