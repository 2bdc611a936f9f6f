package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/reclaim/internal/app"
	"github.com/ternarybob/reclaim/internal/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan pass and print its counters",
}

var scanReferencesCmd = &cobra.Command{
	Use:   "references",
	Short: "Count references to every asset and record broken links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(func(ctx context.Context, a *app.App) (*models.ScanStatus, error) {
			return a.ReferenceScanner.RunScan(ctx)
		})
	},
}

var scanDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Group byte-identical assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(func(ctx context.Context, a *app.App) (*models.ScanStatus, error) {
			return a.DuplicateScanner.RunScan(ctx)
		})
	},
}

func init() {
	scanCmd.AddCommand(scanReferencesCmd)
	scanCmd.AddCommand(scanDuplicatesCmd)
}

func runScan(pass func(ctx context.Context, a *app.App) (*models.ScanStatus, error)) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := pass(ctx, application)
	if err != nil {
		return err
	}
	printCounters(st)
	if st.Phase == models.ScanPhaseError {
		return fmt.Errorf("scan failed: %s", st.ErrorMessage)
	}
	return nil
}

func printCounters(st *models.ScanStatus) {
	c := st.Counters
	fmt.Printf("%s scan: %s\n", st.Type, st.Phase)
	switch st.Type {
	case models.ScanTypeDuplicate:
		fmt.Printf("  assets hashed:    %d of %d\n", c.Scanned, c.Total)
		fmt.Printf("  groups:           %d\n", c.Groups)
		fmt.Printf("  duplicate files:  %d\n", c.DuplicateFiles)
		fmt.Printf("  savable bytes:    %d\n", c.SavableBytes)
	default:
		fmt.Printf("  assets scanned:   %d of %d\n", c.Scanned, c.Total)
		fmt.Printf("  referenced:       %d\n", c.Referenced)
		fmt.Printf("  unreferenced:     %d (%d bytes)\n", c.Unreferenced, c.UnreferencedSz)
		fmt.Printf("  links checked:    %d\n", c.Checked)
		fmt.Printf("  broken links:     %d\n", c.Broken)
	}
}
