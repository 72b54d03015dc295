package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-batcher",
	Short: "Segment event photo batches by QR code and deliver them via Google Drive",
	Long: `Photo Batcher takes a batch of event photos, finds the QR code slides
photographers insert between people, and groups every following photo with
the registration encoded in the code. Each person's photos are uploaded to
a shared Google Drive folder and the link can be emailed to them.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
