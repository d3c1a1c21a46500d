package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/downloader"
	"github.com/cbout22/squaresync/internal/manifest"
	"github.com/cbout22/squaresync/internal/progress"
	"github.com/cbout22/squaresync/internal/remote"
	"github.com/cbout22/squaresync/internal/syncer"
	"github.com/cbout22/squaresync/internal/tree"
)

// newSyncCmd creates the `sync` command.
// Usage: sqsync sync [--course <cid>]... [-o dir] [-w n] [--quiet]
func newSyncCmd(root *rootOptions) *cobra.Command {
	var (
		override config.Config
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download new and changed attachments of your courses",
		Long: `Logs in, lists the selected courses and mirrors every attachment into
<output>/<course name>/..., recreating the remote folder structure.

A file is downloaded when it is missing locally or its size differs from the
size declared by the server. A course that fails is reported and the next
course is still synced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath, override)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, quiet)
		},
	}

	cmd.Flags().StringVarP(&override.OutputDir, "output", "o", "", "Output directory (default: downloads)")
	cmd.Flags().IntVarP(&override.Workers, "workers", "w", 0, "Maximum concurrent downloads (default: 5)")
	cmd.Flags().StringArrayVar(&override.IncludeCourses, "course", nil, "Course id to sync, repeatable; overrides include_courses")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress bars and up-to-date files")

	cmd.RegisterFlagCompletionFunc("course", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return resolveCourseCompletions(cmd.Context(), root.configPath, toComplete)
	})

	return cmd
}

func runSync(ctx context.Context, cfg config.Config, quiet bool) error {
	fmt.Println("🔑 Trying to log in, please wait...")
	client, err := login(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Println("✅ Logged in successfully.")

	out := output{progress: progress.Discard, printf: printStdout, errorf: printStderr, quiet: quiet}
	if !quiet {
		tracker := progress.NewTracker(progress.Options{})
		tracker.Start()
		defer tracker.Stop()
		out.progress = tracker
		out.printf = tracker.Printf
		out.errorf = func(format string, args ...any) {
			tracker.Fprintf(os.Stderr, format, args...)
		}
	}

	lockPath := filepath.Join(cfg.OutputDir, manifest.DefaultLockFile)
	return runSyncWith(ctx, cfg, client, lockPath, out)
}

func printStdout(format string, args ...any) {
	fmt.Printf(format, args...)
}

func printStderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// output is where sync status goes. printf and errorf must be safe for
// concurrent use.
type output struct {
	progress progress.Sink
	printf   func(format string, args ...any)
	errorf   func(format string, args ...any)
	quiet    bool
}

// runSyncWith is the testable core of the sync command.
func runSyncWith(ctx context.Context, cfg config.Config, cat Catalog, lockPath string, out output) error {
	catalog, err := cat.Courses(ctx)
	if err != nil {
		return fmt.Errorf("fetching course list: %w", err)
	}

	courses := selectCourses(catalog, cfg.IncludeCourses, out)
	if len(courses) == 0 {
		out.printf("📋 No courses selected, nothing to sync.\n")
		return nil
	}

	out.printf("\n📋 Ready to download the following courses:\n")
	for _, c := range courses {
		out.printf("  • %s (CID %s)\n", c.Name, c.ID)
	}

	if err := os.MkdirAll(cfg.OutputDir, tree.DirPermissions); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	lock, err := manifest.LoadLock(lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}
	runID := manifest.NewRunID()

	var (
		failed int
		total  downloader.Report
	)
	for _, course := range courses {
		report, err := syncCourse(ctx, cfg, cat, course, lock, runID, out)
		total.Skipped += report.Skipped
		total.Replaced += report.Replaced
		total.Created += report.Created
		total.Bytes += report.Bytes

		if saveErr := lock.Save(lockPath); saveErr != nil {
			return fmt.Errorf("saving lock file: %w", saveErr)
		}

		if err != nil {
			out.errorf("❌ course %s (%s): %s\n", course.Name, course.ID, err)
			failed++
			if ctx.Err() != nil {
				break
			}
		}
	}

	out.printf("\n📦 %d created, %d replaced, %d up-to-date, %s downloaded.\n",
		total.Created, total.Replaced, total.Skipped, progress.FormatBytes(total.Bytes))

	if failed > 0 {
		return fmt.Errorf("sync completed with %d failed course(s)", failed)
	}
	out.printf("✅ All courses synced successfully.\n")
	return nil
}

// selectCourses returns the catalog courses picked by include, in catalog
// order. An empty include list selects everything. Included ids missing from
// the catalog are kept under a CID_<id> placeholder name.
func selectCourses(catalog []remote.Course, include []string, out output) []remote.Course {
	if len(include) == 0 {
		return catalog
	}

	wanted := make(map[string]bool, len(include))
	for _, id := range include {
		wanted[id] = true
	}

	var selected []remote.Course
	for _, c := range catalog {
		if wanted[c.ID] {
			selected = append(selected, c)
			delete(wanted, c.ID)
		}
	}
	for _, id := range include {
		if !wanted[id] {
			continue
		}
		delete(wanted, id)
		out.printf("⚠️  Can't find course name for cid %s, maybe it's a legacy course?\n", id)
		selected = append(selected, remote.Course{ID: id, Name: "CID_" + id})
	}
	return selected
}

// courseDirName is the directory a course is mirrored into.
func courseDirName(c remote.Course) string {
	return strings.TrimSpace(syncer.SafeName(c.Name, "CID_"+c.ID))
}

// syncCourse mirrors one course and records the result in lock.
func syncCourse(ctx context.Context, cfg config.Config, src remote.Source, course remote.Course, lock *manifest.LockFile, runID string, out output) (downloader.Report, error) {
	dirName := courseDirName(course)
	root := filepath.Join(cfg.OutputDir, dirName)

	out.printf("\n📚 Downloading files of course %s\n", course.Name)
	if err := os.MkdirAll(root, tree.DirPermissions); err != nil {
		return downloader.Report{}, fmt.Errorf("creating course directory: %w", err)
	}

	tasks, sum, err := tree.Flatten(ctx, src, tree.Options{
		CourseID: course.ID,
		Root:     root,
		Exclude:  cfg.ExcludeExtensions,
	})
	if err != nil {
		return downloader.Report{}, err
	}
	out.printf("  🔎 Found %d files in %d dirs (%d excluded)\n", sum.Files, sum.Dirs, sum.Excluded)

	d := downloader.New(src, downloader.Options{
		Workers:  cfg.Workers,
		CourseID: course.ID,
		Progress: out.progress,
		OnComplete: func(r downloader.Result) {
			recordResult(lock, course, dirName, runID, r)
			if r.Outcome == downloader.Skipped && !out.quiet {
				out.printf("  File %s is up-to-date\n", r.Task.Name)
			}
		},
	})

	report, err := d.Run(ctx, root, tasks)
	forgetDropped(lock, course.ID, report.Dropped)
	out.printf("  ✅ %d created, %d replaced, %d up-to-date (%s)\n",
		report.Created, report.Replaced, report.Skipped, progress.FormatBytes(report.Bytes))
	return report, err
}

// recordResult updates the lock entry of one handled file.
func recordResult(lock *manifest.LockFile, course remote.Course, dirName, runID string, r downloader.Result) {
	rel := filepath.ToSlash(r.Task.RelPath())

	switch r.Outcome {
	case downloader.Created, downloader.Replaced:
		lock.Set(rel, manifest.LockEntry{
			Course:   course.ID,
			RemoteID: r.Task.Entry.ID,
			Path:     dirName + "/" + rel,
			Size:     r.Bytes,
			Checksum: r.Checksum,
			RunID:    runID,
		})
	case downloader.Skipped:
		if _, ok := lock.Get(course.ID, rel); ok {
			return
		}
		// Present on disk before sqsync tracked it.
		lock.Set(rel, manifest.LockEntry{
			Course:   course.ID,
			RemoteID: r.Task.Entry.ID,
			Path:     dirName + "/" + rel,
			Size:     r.Task.Entry.DeclaredSize(),
			RunID:    runID,
		})
	case downloader.Failed:
		lock.Remove(course.ID, rel)
	}
}

// forgetDropped removes the lock entries of files whose stale copy was
// deleted but never downloaded again.
func forgetDropped(lock *manifest.LockFile, courseID string, dropped []tree.FileTask) {
	for _, task := range dropped {
		lock.Remove(courseID, filepath.ToSlash(task.RelPath()))
	}
}
