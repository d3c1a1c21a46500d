// Package downloader mirrors the files of one course onto the local disk.
//
// Run takes the flattened file list of a course and, for each file, first
// decides locally whether it is up to date, then streams the ones that are
// missing or stale with at most Workers downloads in flight:
//
//	d := downloader.New(client, downloader.Options{
//	    Workers:  5,
//	    CourseID: "1024",
//	    Progress: tracker,
//	})
//	report, err := d.Run(ctx, courseDir, tasks)
//
// # Scheduling
//
// Files are dispatched in list order. When all worker slots are busy,
// dispatch waits for whichever running download finishes first.
//
// # Failures
//
// The first failed file stops dispatch of further files. Downloads that are
// already running are allowed to finish. Run then returns a *TaskError for
// the first failure together with a Report of every file that was handled.
package downloader
