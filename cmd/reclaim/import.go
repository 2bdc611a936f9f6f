package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/services/assets"
	"github.com/ternarybob/reclaim/internal/services/sources"
	"github.com/ternarybob/reclaim/internal/storage"
)

var importBackend string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load content and assets into the store",
}

var importContentCmd = &cobra.Command{
	Use:   "content <file.yaml>",
	Short: "Upsert content items and config blobs from a YAML seed file",
	Long: `Upserts the content items and config blobs of a YAML file. The file is validated
before anything is written.

  content:
    - id: post-1
      kind: post
      format: markdown
      body: "![cover](/upload/blog/cover.png)"
  config_blobs:
    - name: theme-earth
      kind: theme
      groups:
        basic: '{"logo":"/upload/logo.png"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runImportContent,
}

var importUploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Record files in the upload directory as assets",
	Args:  cobra.NoArgs,
	RunE:  runImportUploads,
}

func init() {
	importUploadsCmd.Flags().StringVar(&importBackend, "backend", "", "Local backend the files belong to (default: first local backend)")

	importCmd.AddCommand(importContentCmd)
	importCmd.AddCommand(importUploadsCmd)
}

func runImportContent(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()

	registry := sources.NewRegistry(storageManager.ContentStorage(), config, logger)
	result, err := registry.ImportSeed(context.Background(), f)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d content items and %d config blobs\n", result.Content, result.ConfigBlobs)
	return nil
}

func runImportUploads(cmd *cobra.Command, args []string) error {
	backend := importBackend
	if backend == "" {
		for _, b := range config.Assets.Backends {
			if b.Kind == common.BackendKindLocal {
				backend = b.Name
				break
			}
		}
	}
	if backend == "" {
		return fmt.Errorf("no local backend configured")
	}

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()

	inventory := assets.NewService(storageManager.AssetStorage(), config, logger)
	added, err := inventory.IndexUploads(context.Background(), backend)
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %d new assets from %s\n", added, config.Assets.UploadDir)
	return nil
}
