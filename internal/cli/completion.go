package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbout22/squaresync/internal/auth"
	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/remote"
)

// completionTimeout keeps a slow server from blocking the shell.
const completionTimeout = 3 * time.Second

// resolveCourseCompletions provides dynamic shell completion for course ids.
func resolveCourseCompletions(ctx context.Context, configPath, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := loadConfig(configPath, config.Config{})
	if err != nil || cfg.Validate() != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	client, err := connect(ctx, auth.NewHTTPClient(completionTimeout), cfg)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	courses, err := client.Courses(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeCourses(courses, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeCourses returns "<cid>\t<name>" for every course whose id starts
// with toComplete.
func completeCourses(courses []remote.Course, toComplete string) []string {
	var completions []string
	for _, c := range courses {
		if strings.HasPrefix(c.ID, toComplete) {
			completions = append(completions, formatCompletionLine(c.ID, c.Name))
		}
	}
	return completions
}

// formatCompletionLine renders a value with its description for cobra.
func formatCompletionLine(value, desc string) string {
	if desc == "" {
		return value
	}
	return value + "\t" + desc
}
