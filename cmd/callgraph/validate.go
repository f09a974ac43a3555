package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/callgraph/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check task definitions without running them",
	Long: `Checks each task definition against the document schema, the component
registry and the graph rules, and prints every error and warning found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, cfg, runtimeOptions{logs: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))

		return validateFiles(rt, args, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateFiles reports every file and fails if any has errors.
func validateFiles(rt *runtime, paths []string, out io.Writer) error {
	invalid := 0
	for _, path := range paths {
		def, issues, err := rt.svc.ReadDefinition(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			invalid++
			continue
		}
		if def != nil {
			issues.Merge(rt.svc.Validate(def))
		}
		printIssues(out, path, issues)
		if !issues.Valid() {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d definitions invalid", invalid, len(paths))
	}
	return nil
}

// printIssues writes one line per issue, or "ok" when there are none.
func printIssues(out io.Writer, path string, result *schema.ValidationResult) {
	if result == nil || (len(result.Errors) == 0 && len(result.Warnings) == 0) {
		fmt.Fprintf(out, "%s: ok\n", path)
		return
	}
	for _, issue := range result.Errors {
		fmt.Fprintf(out, "%s: error %s [%s] %s\n", path, issue.Path, issue.Code, issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(out, "%s: warning %s [%s] %s\n", path, issue.Path, issue.Code, issue.Message)
	}
}
