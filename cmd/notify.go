package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/campus-attendance/internal/config"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Manage absence notifications",
}

var notifyDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Deliver pending absence notifications once",
	Long: `Deliver every pending absence notification from the outbox once and
print a summary. Failed notifications stay pending until NOTIFY_MAX_ATTEMPTS
is reached.`,
	Args: cobra.NoArgs,
	RunE: runNotifyDrain,
}

var notifyTestCmd = &cobra.Command{
	Use:   "test <recipient>",
	Short: "Send a test message through the configured transport",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyDrainCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyDrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}
	stats, err := dispatcher.Drain(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Sent:       %d\n", stats.Sent)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Skipped:    %d\n", stats.Skipped)
	fmt.Printf("Duplicates: %d\n", stats.Duplicates)
	return nil
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := &app{cfg: config.Load(), logger: slog.Default()}
	sender, err := a.sender()
	if err != nil {
		return err
	}
	subject := "Campus Attendance test message"
	body := "This is a test message from Campus Attendance.\n"
	if err := sender.Send(ctx, args[0], subject, body); err != nil {
		return err
	}
	fmt.Printf("Test message sent to %s via %s\n", args[0], sender.Name())
	return nil
}
