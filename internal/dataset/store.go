package dataset

import "context"

// View is the read-only side of a merged dataset, handed to the statistics
// engine and the export serializer once a merge is complete.
type View interface {
	// Len returns the number of rows appended so far.
	Len() int

	// Scan calls fn for every row in append order. The row slice is only
	// valid for the duration of the call. Scan stops on the first error.
	Scan(ctx context.Context, fn func(i int, row []Value) error) error

	// Prefix returns up to n leading rows. The result is owned by the
	// caller.
	Prefix(ctx context.Context, n int) ([][]Value, error)
}

// Store is an append-only row store owned by a single merge operation.
//
// Single-writer: Append must not be called concurrently, and not after
// Close. Views stay readable after Close; Discard releases everything and
// is the rollback path for failed or canceled merges.
type Store interface {
	View

	// Append copies row into the store.
	Append(ctx context.Context, row []Value) error

	// Close flushes buffered rows and makes the store read-only.
	Close() error

	// Discard drops all rows and releases backing resources. The store is
	// unusable afterwards.
	Discard() error
}
