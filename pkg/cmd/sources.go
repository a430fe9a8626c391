package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/installer"
)

func newSourcesCmd() *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the skill sources of rulesync.jsonc",
	}

	addCmd := &cobra.Command{
		Use:   "add <source>",
		Short: "Add a skill source",
		Long: `Adds a source to rulesync.jsonc, keeping existing comments. Run install afterwards to fetch it.

Examples:
  rulesync sources add acme/skills
  rulesync sources add acme/skills@v1 --skill planner --skill 'review-*'
  rulesync sources add https://github.com/acme/skills/tree/main/agent-skills`,
		Args: cobra.ExactArgs(1),
		RunE: runSourcesAdd,
	}
	addCmd.Flags().StringSlice("skill", nil, "skill name or glob pattern to fetch (repeatable, default all)")

	removeCmd := &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove a skill source",
		Long:  "Removes a source from rulesync.jsonc. The next install drops it from rulesync.lock and deletes its fetched skills.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourcesRemove,
	}

	outdatedCmd := &cobra.Command{
		Use:   "outdated",
		Short: "Show sources whose ref moved past the locked commit",
		Args:  cobra.NoArgs,
		RunE:  runSourcesOutdated,
	}
	outdatedCmd.Flags().String("token", "", "GitHub token (defaults to GITHUB_TOKEN or GH_TOKEN)")

	sourcesCmd.AddCommand(addCmd, removeCmd, outdatedCmd)
	return sourcesCmd
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	skills, err := cmd.Flags().GetStringSlice("skill")
	if err != nil {
		return err
	}

	path := config.Path(flagBaseDir)
	if err := config.AddSource(path, config.SourceEntry{Source: args[0], Skills: skills}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", args[0], path)
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	path := config.Path(flagBaseDir)
	removed, err := config.RemoveSource(path, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s; run install to prune its skills\n", removed, path)
	return nil
}

func runSourcesOutdated(cmd *cobra.Command, args []string) error {
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagBaseDir)
	if err != nil {
		return err
	}

	inst := &installer.Installer{BaseDir: flagBaseDir}
	statuses, err := inst.Outdated(cmd.Context(), cfg.Sources, installer.Options{
		Token:       token,
		Concurrency: DevCfg.Concurrency,
	})
	if err != nil {
		return err
	}

	failed := 0
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tREF\tLOCKED\tLATEST\tRELEASE\tSTATUS")
	for _, st := range statuses {
		status := "up to date"
		switch {
		case st.Err != nil:
			status = "error: " + st.Err.Error()
			failed++
		case st.LockedCommit == "":
			status = "not installed"
		case st.Outdated:
			status = "outdated"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", st.Source, orDash(st.Ref), short(st.LockedCommit), short(st.LatestCommit), orDash(st.LatestRelease), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d source(s) could not be checked", failed)
	}
	return nil
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return orDash(sha)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
