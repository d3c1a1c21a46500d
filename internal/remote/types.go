package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DirExt is the extension value the API uses to mark directory rows.
const DirExt = "dir"

// RootID is the parent id that lists the top level of a course.
const RootID = "0"

// Entry is one row of an attachment listing.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Ext         string `json:"ext"`
	CanDownload string `json:"can_download"` // "0" or "1"
	Size        string `json:"size"`         // decimal bytes
	Path        string `json:"path"`         // download URL
}

// IsDir reports whether the entry is a directory to expand rather than a file.
func (e Entry) IsDir() bool {
	return e.Ext == DirExt
}

// Downloadable reports whether Path can be fetched directly. When false the
// real URL has to be looked up with a detail request first.
func (e Entry) Downloadable() bool {
	return e.CanDownload != "0"
}

// DeclaredSize returns the byte size reported by the API, or -1 if the
// field is not a valid decimal number.
func (e Entry) DeclaredSize() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(e.Size), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Course is one row of the course catalog.
type Course struct {
	ID   string `json:"cid"`
	Name string `json:"name"`
}

// Session holds the credentials returned by a successful login.
type Session struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// Every API response wraps its payload in a "message" field.
type envelope[T any] struct {
	Message T `json:"message"`
}

type listingMessage struct {
	Count int     `json:"count"`
	List  []Entry `json:"list"`
}

type detailMessage struct {
	Path string `json:"path"`
}

// DecodeMessage decodes an API response body and returns its message payload.
// A body that does not match T is reported as a Decode error.
func DecodeMessage[T any](op string, r io.Reader) (T, error) {
	var env envelope[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		var zero T
		return zero, &Error{Op: op, Kind: Decode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return env.Message, nil
}
