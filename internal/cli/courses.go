package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/remote"
)

// newCoursesCmd creates the `courses` command.
// Usage: sqsync courses
func newCoursesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List your courses and which ones sync will download",
		Long: `Logs in and prints the course catalog with each course id.
Courses selected by include_courses (or all, when it is empty) are marked.
Use the ids with --course or in include_courses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath, config.Config{})
			if err != nil {
				return err
			}
			client, err := login(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return runCoursesWith(cmd.Context(), cfg, client, cmd.OutOrStdout())
		},
	}
}

// courseLister is the part of Catalog the courses command needs.
type courseLister interface {
	Courses(ctx context.Context) ([]remote.Course, error)
}

// runCoursesWith is the testable core of the courses command.
func runCoursesWith(ctx context.Context, cfg config.Config, cat courseLister, w io.Writer) error {
	courses, err := cat.Courses(ctx)
	if err != nil {
		return fmt.Errorf("fetching course list: %w", err)
	}

	if len(courses) == 0 {
		fmt.Fprintln(w, "📋 No courses found for this account.")
		return nil
	}

	fmt.Fprintf(w, "📋 %d course(s):\n\n", len(courses))
	selected := 0
	for _, c := range courses {
		mark := " "
		if cfg.Selected(c.ID) {
			mark = "✔"
			selected++
		}
		fmt.Fprintf(w, "  %s %-8s %s\n", mark, c.ID, c.Name)
	}
	fmt.Fprintf(w, "\n%d of %d selected for sync.\n", selected, len(courses))
	return nil
}
