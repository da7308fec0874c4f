package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/campus-attendance/internal/config"
	"github.com/kozaktomas/campus-attendance/internal/logging"
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "campus-attendance",
	Short: "Face-recognition attendance for campus classes",
	Long: `Campus Attendance records class attendance from a photo of the classroom.
Faces in the photo are matched against enrolled student signatures, combined
with the faculty's manual corrections, and stored as one confirmed session per
class and day. Guardians of absent students are notified.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
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

	cfg := config.Load()
	_, closer, err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, logging to stderr only\n", err)
		logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return
	}
	closeLog = closer
}
