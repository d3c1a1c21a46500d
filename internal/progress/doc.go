// Package progress reports per-file download progress.
//
// A Tracker owns one line per file. Downloads running in parallel each hold
// their own Bar and only ever touch that bar's counters, so concurrent
// updates never interleave on screen: drawing happens on a single goroutine
// that periodically rewrites the live lines.
//
//	t := progress.NewTracker(progress.Options{})
//	t.Start()
//	defer t.Stop()
//
//	bar := t.Track("slides.pdf", size)
//	bar.Add(n)
//	bar.Done(err)
//
// Use Discard when no output is wanted.
package progress
