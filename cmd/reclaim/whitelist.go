package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/reclaim/internal/services/whitelist"
	"github.com/ternarybob/reclaim/internal/storage"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage URLs excluded from broken-link reports",
}

var whitelistImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add whitelist entries from a YAML file",
	Long: `Adds the entries of a YAML file to the whitelist. Entries already present are skipped.

  entries:
    - url: https://cdn.example.com/legacy/
      match_mode: prefix
      note: retired CDN`,
	Args: cobra.ExactArgs(1),
	RunE: runWhitelistImport,
}

func init() {
	whitelistCmd.AddCommand(whitelistImportCmd)
}

func runWhitelistImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open whitelist file: %w", err)
	}
	defer f.Close()

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()

	service := whitelist.NewService(storageManager.WhitelistStorage(), logger)
	added, err := service.ImportYAML(context.Background(), f)
	if err != nil {
		return err
	}

	logger.Info().Str("file", args[0]).Int("added", added).Msg("Whitelist imported")
	fmt.Printf("Imported %d whitelist entries\n", added)
	return nil
}
