package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/project"
	"github.com/dyoshikawa/rulesync/pkg/projector"
	"github.com/dyoshikawa/rulesync/pkg/source"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new rulesync project",
		Long:  "Creates rulesync.jsonc and adds the generated rulesync paths to .gitignore.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
		// init does not need dev config resolution; skip the root PersistentPreRunE.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	initCmd.Flags().Bool("no-input", false, "do not prompt; create an empty configuration")
	return initCmd
}

func runInit(cmd *cobra.Command, args []string) error {
	noInput, err := cmd.Flags().GetBool("no-input")
	if err != nil {
		return err
	}

	var (
		targets []string
		sources []config.SourceEntry
	)
	if !noInput {
		targets, sources, err = promptInit()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(flagBaseDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", flagBaseDir, err)
	}
	if err := project.Init(flagBaseDir, targets, sources); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", project.ConfigFile)

	entries := project.GitignoreEntries()
	for _, t := range targets {
		if p, ok := projector.GetProjector(t); ok {
			entries = append(entries, p.GitignoreEntries()...)
		}
	}
	added, err := project.EnsureGitignore(flagBaseDir, entries)
	if err != nil {
		return err
	}
	for _, entry := range added {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", entry)
	}

	return nil
}

// promptInit uses huh to ask for the targets and an optional first source.
func promptInit() ([]string, []config.SourceEntry, error) {
	registered := projector.RegisteredTargets()
	options := make([]huh.Option[string], len(registered))
	for i, t := range registered {
		options[i] = huh.NewOption(t, t)
	}

	var (
		targets []string
		src     string
	)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which coding assistants should skills be generated for?").
				Options(options...).
				Value(&targets),
			huh.NewInput().
				Title("First skill source (owner/repo[@ref][:path], empty to skip)").
				Value(&src).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := source.Parse(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return nil, nil, fmt.Errorf("prompt failed: %w", err)
	}

	var sources []config.SourceEntry
	if s := strings.TrimSpace(src); s != "" {
		sources = append(sources, config.SourceEntry{Source: s})
	}
	return targets, sources, nil
}
