package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/manifest"
	"github.com/cbout22/squaresync/internal/progress"
)

// newCheckCmd creates the `check` command.
// Usage: sqsync check [--strict] [--verify] [-o dir]
func newCheckCmd(root *rootOptions) *cobra.Command {
	var (
		override config.Config
		strict   bool
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that synced files are still intact on disk",
		Long: `Compares every file recorded in the lock file with the output directory.
Deleted files and files whose size changed are reported. With --verify the
content of every file is hashed and compared with the hash recorded when it
was downloaded, which also catches damaged files of the right size.

Works offline. With --strict, the command exits with a non-zero code if any
issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath, override)
			if err != nil {
				return err
			}
			lockPath := filepath.Join(cfg.OutputDir, manifest.DefaultLockFile)
			return runCheckWith(lockPath, os.DirFS(cfg.OutputDir), strict, verify, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&override.OutputDir, "output", "o", "", "Output directory (default: downloads)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with error code if files are missing or damaged")
	cmd.Flags().BoolVar(&verify, "verify", false, "Re-hash file contents and compare with the lock file")

	return cmd
}

// runCheckWith is the testable core of the check command.
func runCheckWith(lockPath string, fsys fs.FS, strict, verify bool, w io.Writer) error {
	lock, err := manifest.LoadLock(lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}

	entries := lock.All()
	if len(entries) == 0 {
		fmt.Fprintln(w, "📋 No files in the lock file, nothing to check. Run 'sqsync sync' first.")
		return nil
	}

	results := CheckFiles(entries, fsys, verify)

	fmt.Fprintf(w, "🔍 Checking %d file(s)...\n\n", len(results))

	var issues int
	for _, r := range results {
		switch r.Status {
		case CheckOK:
		case CheckFileMissing:
			fmt.Fprintf(w, "  ❌ %s: missing\n", r.Entry.Path)
			issues++
		case CheckSizeMismatch:
			fmt.Fprintf(w, "  ⚠️  %s: size changed: lock=%s disk=%s\n",
				r.Entry.Path, progress.FormatBytes(r.Entry.Size), progress.FormatBytes(r.ActualSize))
			issues++
		case CheckCorrupt:
			fmt.Fprintf(w, "  ⚠️  %s: content changed: lock=%s disk=%s (delete it and sync again)\n", r.Entry.Path, r.Entry.Checksum, r.ActualSum)
			issues++
		case CheckUnreadable:
			fmt.Fprintf(w, "  ❌ %s: %v\n", r.Entry.Path, r.Err)
			issues++
		}
	}

	fmt.Fprintln(w)
	if issues > 0 {
		msg := fmt.Sprintf("Found %d issue(s). Run 'sqsync sync' to fix.", issues)
		if strict {
			return fmt.Errorf("%s", msg)
		}
		fmt.Fprintf(w, "⚠️  %s\n", msg)
	} else {
		fmt.Fprintf(w, "✅ All %d file(s) are intact.\n", len(results))
	}
	return nil
}
