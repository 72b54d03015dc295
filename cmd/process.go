package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/drive"
	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/processor"
	"github.com/kozaktomas/photo-batcher/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <batch-id>",
	Short: "Process a finalized batch from the command line",
	Long: `Process a finalized batch without going through the web API.
The batch is scanned for QR codes, photos are grouped per registration and
each group is uploaded to Google Drive. Progress is shown on the terminal.

The Drive account must already be connected through the web UI, the stored
OAuth token is reused.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("enhanced", false, "Use the enhanced QR decode pipeline for this run")
}

func runProcess(cmd *cobra.Command, args []string) error {
	batchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid batch id %q", args[0])
	}

	cfg := config.Load()
	log := newLogger()

	st, err := store.Open(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	driveManager := drive.NewManager(&cfg.Drive, st, log)
	driveClient := drive.NewClient(&cfg.Drive, driveManager, log)
	sender := mailer.NewSMTPSender(&cfg.SMTP, log)

	pm := processor.NewManager(st, driveClient, sender, newDecoders(log), cfg, log)

	enhanced := cfg.Processing.EnhancedQR
	if mustGetBool(cmd, "enhanced") {
		enhanced = true
	}

	worker, err := pm.Start(batchID, enhanced)
	if err != nil {
		if errors.Is(err, processor.ErrBatchRunning) {
			return fmt.Errorf("batch %d is already being processed", batchID)
		}
		return err
	}

	events := worker.AddListener()
	defer worker.RemoveListener(events)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Processing batch"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ctx := cmd.Context()
	for {
		select {
		case <-worker.Done():
			return printProcessResult(ctx, st, bar, batchID)
		case ev := <-events:
			if batch, berr := st.GetBatch(ctx, batchID); berr == nil {
				_ = bar.Set(batch.ProgressPct())
			}
			if ev.Type == "person_uploaded" {
				fmt.Printf("\nUploaded photos for %s\n", ev.Message)
			}
		}
	}
}

func printProcessResult(ctx context.Context, st *store.Store, bar *progressbar.ProgressBar, batchID int64) error {
	batch, err := st.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if batch.Status == store.BatchFailed {
		fmt.Println()
		return fmt.Errorf("batch %d failed: %s", batchID, batch.ErrorMessage)
	}

	_ = bar.Finish()
	fmt.Printf("\nBatch %d completed: %d photos scanned, %d people found, %d uploaded, %d unmatched\n",
		batchID, batch.ProcessedPhotos, batch.PeopleFound, batch.UploadedPhotos, batch.UnmatchedPhotos)
	return nil
}
