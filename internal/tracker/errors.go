package tracker

import "errors"

var (
	// ErrDuplicateTimestamp is returned when a write would re-create an
	// already-present time-keyed row. Always recoverable by skipping.
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")

	// ErrAccountMismatch is returned when a merge is attempted across stores
	// that hold different accounts. Fatal; checked before any write.
	ErrAccountMismatch = errors.New("account mismatch between stores")

	// ErrFetchFailed is returned when the fetch client could not produce a
	// complete snapshot. The poll is skipped entirely.
	ErrFetchFailed = errors.New("fetch failed")
)
