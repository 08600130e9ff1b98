package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/config"
)

// newInitCmd creates the init command: scaffold a new project directory
// (spec §6 "Project directory layout") and write a default .contextd.yaml.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new contextd project",
		Long: `Create the project directory layout contextd expects:

  <project>/src/              # datasource configs and raw files
  <project>/output/           # rendered context artifacts, one subdir per build run
  <project>/.contextd.yaml    # project configuration

and nothing under src/ yet — add datasource configs there before running
'contextd build'.`,
		Example: `  contextd init
  contextd --project ./my-project init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(projectDir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .contextd.yaml")
	return cmd
}

func runInit(dir string, force bool) error {
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return fmt.Errorf("create src directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "output"), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	configPath := filepath.Join(dir, ".contextd.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.NewConfig()
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}
	cfg.Project.ID = filepath.Base(absDir)
	cfg.Store.Path = "state.db"

	if err := cfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Initialized contextd project %q in %s\n", cfg.Project.ID, dir)
	return nil
}
