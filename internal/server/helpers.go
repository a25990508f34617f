package server

import (
	"errors"
	"sort"
)

var (
	errBadDays        = errors.New("days must be a positive number")
	errBadItemType    = errors.New("item type must be post or comment")
	errUnknownAccount = errors.New("account not found")
)

// sortSubreddits orders a breakdown by item count descending, name ascending
// on ties, so the response is stable across requests.
func sortSubreddits(stats []subredditStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Items != stats[j].Items {
			return stats[i].Items > stats[j].Items
		}
		return stats[i].Subreddit < stats[j].Subreddit
	})
}
