package loadtest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// Options configures one load-test run.
type Options struct {
	URL            string
	Workers        int
	TotalMessages  int
	WarmupMessages int
	Rate           float64
	QueueCapacity  int
	CSVPath        string
	Sender         SenderConfig
}

// Summary aggregates the outcome of a run.
type Summary struct {
	Successful    int64
	Failed        int64
	Connections   int64
	Reconnections int64
	Duration      time.Duration
	Throughput    float64
	Latency       LatencyStats
}

// Runner wires the generator, the sender workers, and the reporter
// together and runs the measured phase, optionally preceded by a
// warmup round whose results are discarded.
type Runner struct {
	opts Options
}

func NewRunner(opts Options) *Runner {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 10000
	}
	if opts.Sender.MaxRetries == 0 {
		opts.Sender = DefaultSenderConfig()
	}
	return &Runner{opts: opts}
}

func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	l := log.L()

	if r.opts.WarmupMessages > 0 {
		l.Info().Int("messages", r.opts.WarmupMessages).Msg("starting warmup phase")
		warmup := r.opts
		warmup.TotalMessages = r.opts.WarmupMessages
		warmup.WarmupMessages = 0
		warmup.CSVPath = ""
		if _, err := runPhase(ctx, warmup); err != nil {
			l.Warn().Err(err).Msg("warmup phase failed, continuing to measured run")
		}
	}

	l.Info().
		Str("url", r.opts.URL).
		Int("workers", r.opts.Workers).
		Int("messages", r.opts.TotalMessages).
		Float64("rate", r.opts.Rate).
		Msg("starting measured run")

	return runPhase(ctx, r.opts)
}

func runPhase(ctx context.Context, opts Options) (*Summary, error) {
	queue := make(chan *domain.ChatMessage, opts.QueueCapacity)
	reporter := NewReporter(opts.CSVPath)

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Workers)
	}

	generator := NewGenerator(queue, opts.TotalMessages, opts.Workers, time.Now().UnixNano())

	workers := make([]*Worker, opts.Workers)
	for i := range workers {
		workers[i] = NewWorker(i, opts.URL, queue, reporter, limiter, opts.Sender)
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return generator.Run(gctx) })
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}

	runErr := g.Wait()
	elapsed := time.Since(start)

	summary := &Summary{Duration: elapsed}
	var latencies []time.Duration
	for _, w := range workers {
		summary.Successful += w.SuccessCount()
		summary.Failed += w.FailureCount()
		summary.Connections += w.Connections()
		summary.Reconnections += w.Reconnections()
		latencies = append(latencies, w.Latencies()...)
	}
	if elapsed > 0 {
		summary.Throughput = float64(summary.Successful) / elapsed.Seconds()
	}
	summary.Latency = ComputeStats(latencies)

	if err := reporter.WriteCSV(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to write csv report")
	}

	logSummary(summary)

	return summary, runFailure(runErr)
}

// runFailure filters cancellation out of the run error. A cancelled
// run ended on request and still carries a meaningful summary, even
// when a worker wrapped the cancellation on the way up.
func runFailure(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logSummary(s *Summary) {
	l := log.L()
	l.Info().
		Int64("successful", s.Successful).
		Int64("failed", s.Failed).
		Int64("connections", s.Connections).
		Int64("reconnections", s.Reconnections).
		Dur("duration", s.Duration).
		Float64("throughput_per_sec", s.Throughput).
		Msg("run complete")

	if s.Latency.Count > 0 {
		l.Info().
			Int("samples", s.Latency.Count).
			Dur("mean", s.Latency.Mean).
			Dur("median", s.Latency.Median).
			Dur("p95", s.Latency.P95).
			Dur("p99", s.Latency.P99).
			Dur("min", s.Latency.Min).
			Dur("max", s.Latency.Max).
			Msg("latency statistics")
	}
}
