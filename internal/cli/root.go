package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// NewRootCmd creates the top-level `sqsync` command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sqsync",
		Short: "SquareSync: mirror your course attachments to disk",
		Long: `sqsync logs into the course service, walks the attachment tree of every
selected course and mirrors it into a local directory. Files whose size
already matches the server are left alone, so running it again only fetches
what changed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Config file (.toml, .yaml or legacy .json; default: sqsync.toml, then config.json)")

	root.AddCommand(newSyncCmd(opts))
	root.AddCommand(newCoursesCmd(opts))
	root.AddCommand(newCheckCmd(opts))

	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
