package cmd

import (
	"fmt"

	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var qrCmd = &cobra.Command{
	Use:   "qr <file> [file...]",
	Short: "Decode QR codes from photo files",
	Long: `Decode the QR code in one or more photo files and print the raw payload.
Useful for checking why a separator slide was not recognized during
batch processing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQR,
}

func init() {
	rootCmd.AddCommand(qrCmd)

	qrCmd.Flags().Bool("enhanced", false, "Try rotated and resized variants when the plain decode fails")
}

func runQR(cmd *cobra.Command, args []string) error {
	mode := qr.ModeFast
	if mustGetBool(cmd, "enhanced") {
		mode = qr.ModeEnhanced
	}
	decoder := qr.NewDecoder(mode, zerolog.Nop())

	failed := 0
	for _, path := range args {
		raw, ok := decoder.DecodeRaw(path)
		if !ok {
			fmt.Printf("%s: no QR code found\n", path)
			failed++
			continue
		}

		if payload, err := qr.ParsePayload(raw); err == nil {
			fmt.Printf("%s: token=%s registration=%d\n", path, payload.Token, payload.RegistrationID)
		} else {
			fmt.Printf("%s: %s (not a registration payload)\n", path, raw)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files had no readable QR code", failed, len(args))
	}
	return nil
}
