package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Campus Attendance API server.
Faculty submit class photos and manual corrections; the server matches faces,
stores the session and delivers absence notifications in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port != 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	detector, err := a.detector()
	if err != nil {
		return err
	}
	engine, err := a.engine(detector)
	if err != nil {
		return err
	}
	if hd, ok := detector.(*facematch.HTTPDetector); ok {
		hctx, hcancel := context.WithTimeout(ctx, 5*time.Second)
		if err := hd.Health(hctx); err != nil {
			a.logger.Warn("face detector is not reachable, submissions with photos will fail",
				"module", "cmd", "url", a.cfg.Detector.URL, "error", err)
		}
		hcancel()
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}
	service, err := a.service(engine, dispatcher)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		dispatcher.Run(ctx, a.cfg.Notify.Interval)
	})

	server := web.NewServer(a.cfg, web.Dependencies{
		Attendance: service,
		Enroller:   engine,
		Signatures: a.signatureReader,
		Registry:   a.registry,
		Logger:     a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Campus Attendance on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	err = server.Start()
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
