package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/installer"
)

func newInstallCmd() *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Fetch the skills declared in rulesync.jsonc",
		Long: `Resolves every source in rulesync.jsonc, fetches its skills into .rulesync/skills/.curated
and records the resolved commits and content hashes in rulesync.lock.

Locked sources are reused without network access unless --update is given.
With --frozen nothing is fetched or written; the command fails when the
lockfile or the cache does not cover the configuration.`,
		Args: cobra.NoArgs,
		RunE: runInstall,
	}

	installCmd.Flags().Bool("update", false, "re-resolve every ref and refetch all skills")
	installCmd.Flags().Bool("frozen", false, "fail instead of fetching when rulesync.lock or the cache is out of date")
	installCmd.Flags().String("token", "", "GitHub token (defaults to GITHUB_TOKEN or GH_TOKEN)")
	installCmd.Flags().Int("concurrency", 0, "maximum concurrent requests")
	installCmd.MarkFlagsMutuallyExclusive("update", "frozen")

	return installCmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	opts, err := installOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagBaseDir)
	if err != nil {
		return err
	}

	inst := &installer.Installer{BaseDir: flagBaseDir}
	res, err := inst.Install(cmd.Context(), cfg.Sources, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d skill(s) from %d source(s)\n", res.FetchedSkillCount, res.SourcesProcessed)
	return nil
}

func installOptions(cmd *cobra.Command) (installer.Options, error) {
	var opts installer.Options
	var err error
	if opts.Update, err = cmd.Flags().GetBool("update"); err != nil {
		return opts, err
	}
	if opts.Frozen, err = cmd.Flags().GetBool("frozen"); err != nil {
		return opts, err
	}
	if opts.Token, err = cmd.Flags().GetString("token"); err != nil {
		return opts, err
	}
	if opts.Concurrency, err = cmd.Flags().GetInt("concurrency"); err != nil {
		return opts, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DevCfg.Concurrency
	}
	return opts, nil
}
