package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/config"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect validation rule sets",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and verify every rule set",
	Long: `Loads every rule set from the rules directory and reports what was
found. A malformed file, an unknown key, or weights that do not sum to
1.0 fail the check.

Example:
  go run ./cmd/gridflow rules check`,
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, err := validate.Load(cfg.RulesDir)
	if err != nil {
		PrintError(fmt.Sprintf("Rule check failed: %v", err))
		return err
	}

	keys := registry.Keys()
	fmt.Printf("Rule sets in %s:\n", cfg.RulesDir)
	for _, key := range keys {
		fmt.Printf("  - %s\n", key)
	}
	PrintSuccess(fmt.Sprintf("%d rule set(s) loaded", len(keys)))

	return nil
}
