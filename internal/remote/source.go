package remote

import (
	"context"
	"io"
)

// Lister lists the children of a remote attachment directory.
type Lister interface {
	// ListAll returns every entry under parentID in course cid, across all pages.
	ListAll(ctx context.Context, cid, parentID string) ([]Entry, error)
}

// Fetcher resolves and opens attachment byte streams.
type Fetcher interface {
	// Detail returns the real download URL of an entry that is not directly
	// downloadable.
	Detail(ctx context.Context, cid, id string) (string, error)

	// Open starts a GET for the given download URL.
	Open(ctx context.Context, url string) (*Stream, error)
}

// Source is everything needed to mirror one course.
type Source interface {
	Lister
	Fetcher
}

// Stream is an open attachment download.
type Stream struct {
	Body io.ReadCloser
	// ContentLength is -1 when the server did not declare it.
	ContentLength int64
}
