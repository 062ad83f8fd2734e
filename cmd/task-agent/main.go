package main

import (
	"os"

	"task-agent/internal/logger"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	log     = logger.Named("main")
)

// rootArgs 是所有子命令共享的持久化参数。
type rootArgs struct {
	cfgPath   string
	overrides []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	args := &rootArgs{}
	rootCmd := &cobra.Command{
		Use:   "task-agent",
		Short: "Run plain-English automation tasks against a sandboxed data directory",
		Long: `task-agent classifies a plain-English instruction into one of a fixed set of
operations, validates its arguments against the data directory sandbox, and runs it once.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&args.cfgPath, "config", "", "config file (default is $HOME/.task-agent/config.toml)")
	rootCmd.PersistentFlags().StringArrayVarP(&args.overrides, "override", "c", nil, "override config value key=value (repeatable)")

	rootCmd.AddCommand(
		newServeCmd(args),
		newRunCmd(args),
		newAskCmd(args),
		newOperationsCmd(args),
		newPingCmd(args),
		newConfigCmd(args),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Printf("task-agent version %s\n", version)
			},
		},
	)
	return rootCmd
}
