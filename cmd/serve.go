package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/drive"
	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/processor"
	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
	"github.com/kozaktomas/photo-batcher/internal/web"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Batcher web server.
The server exposes the batch upload, processing and registration API
together with a live progress event stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

// newLogger builds the process-wide logger. LOG_FORMAT=json switches to the
// raw JSON output suitable for log collectors.
func newLogger() zerolog.Logger {
	if os.Getenv("LOG_FORMAT") == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

// newDecoders builds the decode function for each QR mode. The mode used by
// a run is picked per batch, with the config value as default.
func newDecoders(log zerolog.Logger) processor.Decoders {
	return processor.Decoders{
		Fast:     qr.NewDecoder(qr.ModeFast, log).Decode,
		Enhanced: qr.NewDecoder(qr.ModeEnhanced, log).Decode,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
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

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, st, pm, driveManager, sender, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Photo Batcher API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
