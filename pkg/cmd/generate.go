package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/installer"
	"github.com/dyoshikawa/rulesync/pkg/projector"
)

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Link local and fetched skills into coding assistant configurations",
		Long: `Links every skill under .rulesync/skills, including the fetched ones in .rulesync/skills/.curated,
into the skills directory of each target. A local skill wins over a fetched skill with the same name.
Links to skills that no longer exist are removed.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagBaseDir)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Warning: no targets selected, nothing was generated")
		return nil
	}

	inst := &installer.Installer{BaseDir: flagBaseDir}
	n, err := inst.Generate(cmd.Context(), targets)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d skill(s) for %s\n", n, strings.Join(targets, ", "))
	return nil
}

// resolveTargets returns the targets from flags or developer config, then
// from rulesync.jsonc, and otherwise prompts the user to select from all
// registered targets.
func resolveTargets(cfg *config.Config) ([]string, error) {
	if len(DevCfg.Targets) > 0 {
		return DevCfg.Targets, nil
	}
	if len(cfg.Targets) > 0 {
		return cfg.Targets, nil
	}
	return promptTargets()
}

// promptTargets uses huh to present a multi-select of all registered
// targets, then asks whether to save the choice for future runs.
func promptTargets() ([]string, error) {
	targets := projector.RegisteredTargets()
	options := make([]huh.Option[string], len(targets))
	for i, t := range targets {
		options[i] = huh.NewOption(t, t)
	}

	var selected []string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select targets to generate skills for").
				Options(options...).
				Value(&selected),
		),
	).Run()
	if err != nil {
		return nil, fmt.Errorf("target selection prompt failed: %w", err)
	}

	if len(selected) == 0 {
		return selected, nil
	}

	var saveChoice string
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save target selection for future runs?").
				Options(
					huh.NewOption("Yes, for this project", "project"),
					huh.NewOption("Yes, globally", "global"),
					huh.NewOption("No", "no"),
				).
				Value(&saveChoice),
		),
	).Run()
	if err != nil {
		return nil, fmt.Errorf("save preference prompt failed: %w", err)
	}

	devCfg := &config.DevConfig{Targets: selected}
	switch saveChoice {
	case "project":
		base, err := filepath.Abs(flagBaseDir)
		if err != nil {
			return nil, err
		}
		if err := config.WriteLocalDevConfig(base, devCfg); err != nil {
			return nil, err
		}
	case "global":
		if err := config.WriteGlobalDevConfig(devCfg); err != nil {
			return nil, err
		}
	}

	return selected, nil
}
