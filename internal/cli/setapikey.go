package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jasper-companion/jasper/internal/config"
)

func init() {
	rootCmd.AddCommand(setAPIKeyCmd)
}

var setAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key KEY",
	Short: "Store the Claude API key in the configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetAPIKey,
}

func runSetAPIKey(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	cfg.AI.APIKey = args[0]
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println("Claude API key updated successfully")
	return nil
}
