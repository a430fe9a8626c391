package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/logger"
)

var (
	flagBaseDir   string
	flagTargets   []string
	flagLogLevel  string
	flagLogFormat string

	// DevCfg holds the resolved developer configuration, available to all
	// subcommands after PersistentPreRunE completes.
	DevCfg *config.DevConfig
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rulesync",
		Short: "Sync AI coding assistant skills from remote repositories",
		Long: `rulesync fetches skill directories from the repositories declared in rulesync.jsonc
into a local cache pinned by rulesync.lock, and links them into coding assistant configurations.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDevConfig(flagBaseDir, config.Overrides{
				Targets:   flagTargets,
				LogLevel:  flagLogLevel,
				LogFormat: flagLogFormat,
			})
			if err != nil {
				return err
			}
			if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			logger.SetLogFormat(cfg.LogFormat)
			logger.SetLogOutput(cmd.ErrOrStderr())
			DevCfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagBaseDir, "base-dir", ".", "project directory holding rulesync.jsonc")
	root.PersistentFlags().StringSliceVar(&flagTargets, "targets", nil, "coding assistants to generate for (e.g. claudecode,cursor)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(newInitCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newSkillsCmd())
	root.AddCommand(newSourcesCmd())

	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
