package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Alkatripathi-004/chat-fanout/internal/loadtest"
	pkglog "github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

func NewLoadtestCommand() *cobra.Command {
	var (
		url      string
		workers  int
		messages int
		warmup   int
		rateLim  float64
		queueCap int
		csvPath  string
		logLevel string
		pretty   bool
	)

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run the reliable-send load harness against a chat server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			pkglog.Init(pkglog.Config{
				Level:       logLevel,
				Pretty:      pretty,
				ServiceName: "loadtest",
			})

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if csvPath == "" {
				csvPath = fmt.Sprintf("results/performance_metrics_%d_workers_%d_msgs.csv", workers, messages)
			}

			runner := loadtest.NewRunner(loadtest.Options{
				URL:            url,
				Workers:        workers,
				TotalMessages:  messages,
				WarmupMessages: warmup,
				Rate:           rateLim,
				QueueCapacity:  queueCap,
				CSVPath:        csvPath,
				Sender:         loadtest.DefaultSenderConfig(),
			})

			summary, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			if summary.Failed > 0 && summary.Successful == 0 {
				return fmt.Errorf("all %d messages failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:8088/chat", "Base WebSocket URL (room suffix appended per worker)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 256, "Number of sender workers")
	cmd.Flags().IntVarP(&messages, "messages", "m", 500000, "Total messages to send")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "Warmup messages before the measured run (0 disables)")
	cmd.Flags().Float64VarP(&rateLim, "rate", "r", 4000, "Shared send rate limit per second (0 disables)")
	cmd.Flags().IntVar(&queueCap, "queue-capacity", 10000, "Shared message queue capacity")
	cmd.Flags().StringVarP(&csvPath, "csv", "o", "", "CSV output path (defaults to results/performance_metrics_...)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Human-readable log output")

	return cmd
}

func main() {
	cmd := NewLoadtestCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
