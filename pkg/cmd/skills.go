package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/installer"
	"github.com/dyoshikawa/rulesync/pkg/lockfile"
)

func newSkillsCmd() *cobra.Command {
	skillsCmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect local and fetched skills",
	}

	skillsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List local and fetched skills",
		Long:  "Lists the skills under .rulesync/skills and .rulesync/skills/.curated with the source each fetched skill came from.",
		Args:  cobra.NoArgs,
		RunE:  runSkillsList,
	})
	skillsCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check fetched skills against rulesync.lock",
		Long: `Recomputes the content hash of every locked skill from .rulesync/skills/.curated and compares it
with rulesync.lock. Fails when a skill is missing or its content differs.`,
		Args: cobra.NoArgs,
		RunE: runSkillsVerify,
	})

	return skillsCmd
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	inst := &installer.Installer{BaseDir: flagBaseDir}
	listed, err := inst.ListSkills(cmd.Context())
	if err != nil {
		return err
	}
	if len(listed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skills found")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t------\t-----------")
	for _, s := range listed {
		src := "(local)"
		if s.Curated {
			src = s.Source
			if src == "" {
				src = "(not in " + lockfile.FileName + ")"
			}
			if s.Shadowed {
				src += " (shadowed by local)"
			}
		}
		description := s.Description
		if len(description) > 60 {
			description = description[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, src, description)
	}
	return tw.Flush()
}

func runSkillsVerify(cmd *cobra.Command, args []string) error {
	inst := &installer.Installer{BaseDir: flagBaseDir}
	statuses, err := inst.Verify(cmd.Context())
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No locked skills")
		return nil
	}

	failed := 0
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tSOURCE\tSTATUS")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Skill, st.Source, st.State)
		if st.State == installer.StateMissing || st.State == installer.StateMismatch {
			failed++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d locked skill(s) failed verification; run install to restore them", failed, len(statuses))
	}
	return nil
}
