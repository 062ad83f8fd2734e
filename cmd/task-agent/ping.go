package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"task-agent/internal/agent"
	openaimodel "task-agent/internal/agent/openai"
	"task-agent/internal/classifier"
	"task-agent/internal/config"

	"github.com/spf13/cobra"
)

func newPingCmd(args *rootArgs) *cobra.Command {
	var raw bool
	var timeoutSeconds int
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured model endpoint is reachable and answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			if timeoutSeconds <= 0 {
				timeoutSeconds = 30
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSeconds)*time.Second)
			defer cancel()
			return runPing(ctx, cfg, raw, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "call /chat/completions directly instead of through the SDK (openai only)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "timeout seconds (default 30)")
	return cmd
}

func runPing(ctx context.Context, cfg config.Config, raw bool, out io.Writer) error {
	if strings.TrimSpace(cfg.Model.Token) == "" {
		return errors.New("missing token: set AIPROXY_TOKEN or OPENAI_API_KEY, or configure model.token")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	if provider == "" || provider == config.ProviderOpenAI {
		ep, err := openaimodel.DialEndpoint(ctx, cfg.Model.URL)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "reachable: %s (%s)\n", ep.Addr, ep.Latency.Round(time.Millisecond))
		if raw {
			got, err := openaimodel.CheckChatEndpoint(ctx, cfg.Model.URL, cfg.Model.Token, cfg.Model.Model)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "ok: %s\n", got)
			return nil
		}
	}

	models, err := classifier.NewModels(cfg.Model)
	if err != nil {
		return err
	}
	got, err := models.Completer.Complete(ctx, agent.Prompt{
		Model: cfg.Model.Model,
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: "请严格只输出 pong（全小写），不要任何其他字符（不要标点、不要换行）。"},
			{Role: agent.RoleUser, Content: "ping"},
		},
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "ok: %s\n", got)
	return nil
}
