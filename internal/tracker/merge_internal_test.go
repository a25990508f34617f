package tracker

import (
	"testing"
	"time"

	"redtrack/internal/model"
)

func ts(minute int) time.Time {
	return time.Date(2024, 1, 15, 10, minute, 0, 0, time.UTC)
}

func entry(minute int, score int64) model.ScoreEntry {
	return model.ScoreEntry{
		ItemType:   model.ItemTypePost,
		NaturalID:  "p1",
		ObservedAt: ts(minute),
		Score:      score,
	}
}

func TestDedupeScores(t *testing.T) {
	t.Run("collapses runs of equal scores", func(t *testing.T) {
		in := []model.ScoreEntry{entry(0, 5), entry(1, 5), entry(2, 9), entry(3, 9), entry(4, 5)}
		got := dedupeScores(in)
		want := []int64{5, 9, 5}
		if len(got) != len(want) {
			t.Fatalf("dedupeScores() len = %d, want %d", len(got), len(want))
		}
		for i, e := range got {
			if e.Score != want[i] {
				t.Errorf("entry %d score = %d, want %d", i, e.Score, want[i])
			}
		}
	})

	t.Run("keeps the earliest entry of a run", func(t *testing.T) {
		got := dedupeScores([]model.ScoreEntry{entry(0, 9), entry(5, 9)})
		if len(got) != 1 {
			t.Fatalf("dedupeScores() len = %d, want 1", len(got))
		}
		if !got[0].ObservedAt.Equal(ts(0)) {
			t.Errorf("kept entry at %v, want %v", got[0].ObservedAt, ts(0))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := dedupeScores(nil); len(got) != 0 {
			t.Errorf("dedupeScores(nil) len = %d, want 0", len(got))
		}
	})
}

func TestMergeScoreSeries(t *testing.T) {
	t.Run("overlapping series collapse to canonical sequence", func(t *testing.T) {
		src := []model.ScoreEntry{entry(0, 5), entry(10, 9)}
		tgt := []model.ScoreEntry{entry(10, 9), entry(20, 9)}

		got := mergeScoreSeries(src, tgt)
		if len(got) != 2 {
			t.Fatalf("mergeScoreSeries() len = %d, want 2", len(got))
		}
		if got[0].Score != 5 || !got[0].ObservedAt.Equal(ts(0)) {
			t.Errorf("first entry = %d@%v, want 5@%v", got[0].Score, got[0].ObservedAt, ts(0))
		}
		if got[1].Score != 9 || !got[1].ObservedAt.Equal(ts(10)) {
			t.Errorf("second entry = %d@%v, want 9@%v", got[1].Score, got[1].ObservedAt, ts(10))
		}
	})

	t.Run("target wins same-timestamp collision", func(t *testing.T) {
		src := []model.ScoreEntry{entry(0, 3)}
		tgt := []model.ScoreEntry{entry(0, 7)}

		got := mergeScoreSeries(src, tgt)
		if len(got) != 1 || got[0].Score != 7 {
			t.Fatalf("mergeScoreSeries() = %+v, want single entry with score 7", got)
		}
	})

	t.Run("disjoint series interleave by time", func(t *testing.T) {
		src := []model.ScoreEntry{entry(0, 1), entry(20, 3)}
		tgt := []model.ScoreEntry{entry(10, 2)}

		got := mergeScoreSeries(src, tgt)
		want := []int64{1, 2, 3}
		if len(got) != len(want) {
			t.Fatalf("mergeScoreSeries() len = %d, want %d", len(got), len(want))
		}
		for i, e := range got {
			if e.Score != want[i] {
				t.Errorf("entry %d score = %d, want %d", i, e.Score, want[i])
			}
		}
	})
}

func TestMergeSnapshots(t *testing.T) {
	snap := func(minute int, total int64) model.AccountSnapshot {
		return model.AccountSnapshot{
			Account:    "alice",
			ObservedAt: ts(minute),
			TotalKarma: total,
		}
	}

	t.Run("union of disjoint timestamps", func(t *testing.T) {
		a := &History{Snapshots: []model.AccountSnapshot{snap(0, 10)}}
		b := &History{Snapshots: []model.AccountSnapshot{snap(10, 20)}}

		got := mergeSnapshots(a, b)
		if len(got) != 2 {
			t.Fatalf("mergeSnapshots() len = %d, want 2", len(got))
		}
		if !got[0].ObservedAt.Before(got[1].ObservedAt) {
			t.Error("snapshots not sorted by observed_at")
		}
	})

	t.Run("zero totals lose a timestamp collision", func(t *testing.T) {
		a := &History{Snapshots: []model.AccountSnapshot{snap(0, 42)}}
		b := &History{Snapshots: []model.AccountSnapshot{snap(0, 0)}}

		got := mergeSnapshots(a, b)
		if len(got) != 1 || got[0].TotalKarma != 42 {
			t.Fatalf("mergeSnapshots() = %+v, want one entry with total 42", got)
		}

		// And symmetrically when the zero entry is in the source.
		got = mergeSnapshots(b, a)
		if len(got) != 1 || got[0].TotalKarma != 42 {
			t.Fatalf("mergeSnapshots() reversed = %+v, want one entry with total 42", got)
		}
	})

	t.Run("longer history wins a non-zero collision", func(t *testing.T) {
		a := &History{Snapshots: []model.AccountSnapshot{snap(0, 100), snap(10, 110), snap(20, 120)}}
		b := &History{Snapshots: []model.AccountSnapshot{snap(0, 99)}}

		got := mergeSnapshots(a, b)
		if got[0].TotalKarma != 100 {
			t.Errorf("collision total = %d, want 100 (source has longer history)", got[0].TotalKarma)
		}
	})

	t.Run("target wins a true tie", func(t *testing.T) {
		a := &History{Snapshots: []model.AccountSnapshot{snap(0, 100)}}
		b := &History{Snapshots: []model.AccountSnapshot{snap(0, 99)}}

		got := mergeSnapshots(a, b)
		if got[0].TotalKarma != 99 {
			t.Errorf("collision total = %d, want 99 (target wins ties)", got[0].TotalKarma)
		}
	})
}

func TestMergeItem(t *testing.T) {
	base := model.Item{
		Type:           model.ItemTypePost,
		NaturalID:      "p1",
		Account:        "alice",
		Subreddit:      "golang",
		Title:          "original title",
		CreatedAt:      ts(0),
		CurrentScore:   5,
		LastObservedAt: ts(10),
	}

	t.Run("earlier creation owns write-once fields", func(t *testing.T) {
		src := base
		src.Title = "first observation"
		tgt := base
		tgt.CreatedAt = ts(5)
		tgt.Title = "later observation"

		got := mergeItem(src, tgt)
		if got.Title != "first observation" {
			t.Errorf("Title = %q, want %q", got.Title, "first observation")
		}
		if !got.CreatedAt.Equal(ts(0)) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, ts(0))
		}
	})

	t.Run("later observation owns mutable fields", func(t *testing.T) {
		src := base
		src.LastObservedAt = ts(30)
		src.CurrentScore = 9
		tgt := base

		got := mergeItem(src, tgt)
		if got.CurrentScore != 9 {
			t.Errorf("CurrentScore = %d, want 9", got.CurrentScore)
		}
		if !got.LastObservedAt.Equal(ts(30)) {
			t.Errorf("LastObservedAt = %v, want %v", got.LastObservedAt, ts(30))
		}
	})

	t.Run("non-empty image path preferred", func(t *testing.T) {
		src := base
		src.LocalImagePath = "images/p1.jpg"
		tgt := base

		if got := mergeItem(src, tgt); got.LocalImagePath != "images/p1.jpg" {
			t.Errorf("LocalImagePath = %q, want %q", got.LocalImagePath, "images/p1.jpg")
		}
	})

	t.Run("target image path wins double non-empty", func(t *testing.T) {
		src := base
		src.LocalImagePath = "images/src.jpg"
		tgt := base
		tgt.LocalImagePath = "images/tgt.jpg"

		if got := mergeItem(src, tgt); got.LocalImagePath != "images/tgt.jpg" {
			t.Errorf("LocalImagePath = %q, want %q", got.LocalImagePath, "images/tgt.jpg")
		}
	})

	t.Run("target wins tied timestamps", func(t *testing.T) {
		src := base
		src.CurrentScore = 1
		src.Title = "source title"
		tgt := base
		tgt.CurrentScore = 2
		tgt.Title = "target title"

		got := mergeItem(src, tgt)
		if got.CurrentScore != 2 || got.Title != "target title" {
			t.Errorf("tied merge = score %d title %q, want target's values", got.CurrentScore, got.Title)
		}
	})
}
