package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"task-agent/internal/classifier"
	"task-agent/internal/tools"

	"github.com/spf13/cobra"
)

// errDispatchFailed 让 run 在结果已打印后以非零状态退出。
var errDispatchFailed = errors.New("dispatch failed")

func newRunCmd(args *rootArgs) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Classify and run one instruction, printing the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, rest []string) error {
			a, err := newApp(args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := withOptionalTimeout(cmd.Context(), timeout)
			defer cancel()
			res := a.dispatcher.Run(ctx, strings.Join(rest, " "))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("%w: %s", errDispatchFailed, res.Kind)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for the instruction (0 = none)")
	return cmd
}

func newAskCmd(args *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Show which operation and arguments the classifier picks, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, rest []string) error {
			a, err := newApp(args)
			if err != nil {
				return err
			}
			defer a.Close()

			cls, err := a.classifier.Classify(cmd.Context(), strings.Join(rest, " "))
			if err != nil && !errors.Is(err, classifier.ErrUnknownOperation) {
				return err
			}
			out := map[string]any{"name": cls.Operation, "arguments": cls.Arguments}
			if err != nil {
				out["error"] = err.Error()
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newOperationsCmd(args *rootArgs) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List the registered operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(args)
			if err != nil {
				return err
			}
			defer a.Close()
			return printOperations(cmd.OutOrStdout(), a.registry, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include parameter schemas")
	return cmd
}

func printOperations(out io.Writer, registry *tools.Registry, verbose bool) error {
	for _, spec := range registry.Describe() {
		if _, err := fmt.Fprintf(out, "%-22s %s\n", spec.Name, spec.Description); err != nil {
			return err
		}
		if !verbose {
			continue
		}
		for _, p := range spec.Schema {
			flag := ""
			if p.Required {
				flag = " (required)"
			}
			if _, err := fmt.Fprintf(out, "    %-20s %s%s\n", p.Name, p.Type, flag); err != nil {
				return err
			}
		}
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
