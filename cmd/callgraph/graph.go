package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/callgraph/internal/service"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Draw a task definition as a Mermaid flowchart or text diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")

		ctx := cmd.Context()
		rt, err := newRuntime(ctx, cfg, runtimeOptions{logs: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))

		return drawTask(ctx, rt, args[0], format, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("format", service.FormatMermaid, "output format: mermaid or ascii")
}

// drawTask loads the definition without starting it and renders it.
func drawTask(ctx context.Context, rt *runtime, path, format string, out io.Writer) error {
	def, issues, err := rt.svc.ReadDefinition(path)
	if err != nil {
		return err
	}
	if def == nil {
		printIssues(out, path, issues)
		return issues.ToError()
	}
	loaded, err := rt.svc.Load(ctx, def)
	if err != nil {
		return err
	}
	text, err := rt.svc.Diagram(loaded.TaskID, format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, text)
	return err
}
