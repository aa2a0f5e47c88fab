package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartcare/schedd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the schedd.toml config file",
}

var configGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Write a commented default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}
		if err := config.GenerateDefault(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, created, err := config.Load(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Println("No config file found; wrote defaults.")
		}
		fmt.Printf("Config OK. Store: %s, poll every %ds, batch %d.\n",
			redactURL(cfg.DatabaseURL()), cfg.Scheduler.PollIntervalSec, cfg.Scheduler.Batch)
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().String("config", "", "Path to schedd.toml")
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
}
