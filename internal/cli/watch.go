package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/metrics"
	"github.com/zhuyongyong/crosswalk/internal/readiness"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
	watchAcquire     bool
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "How often to re-check the runtime")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	watchCmd.Flags().BoolVar(&watchAcquire, "acquire", false, "Acquire the runtime whenever it is missing or outdated")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check the runtime periodically until it is ready",
	Long: `Re-check the runtime on an interval until it is ready. Use this while the
runtime is installed by other means, e.g. from the store. With --acquire the
runtime is downloaded whenever a check finds it missing or outdated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		s, err := loadSettings()
		if err != nil {
			return err
		}
		host := newConsoleHost(cmd.OutOrStdout(), cmd.InOrStdin(), true)
		host.passive = true
		sess, err := newSession(s, logger, host, watchAcquire)
		if err != nil {
			return err
		}
		host.ctl = sess.machine

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if watchMetricsAddr != "" {
			srv, err := serveMetrics(watchMetricsAddr, sess)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		return watch(ctx, sess.machine, watchInterval)
	},
}

// watch posts a readiness check every interval and runs the machine until
// the runtime is ready, acquisition is cancelled or ctx is done.
func watch(ctx context.Context, m *readiness.Machine, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	ticks := make(chan struct{}, 1)
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			m.Post(m.CheckReadiness)
			select {
			case ticks <- struct{}{}:
			default:
			}
		}),
		gocron.WithName("readiness-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling readiness check: %w", err)
	}
	sched.Start()

	m.Post(m.CheckReadiness)
	for {
		err := m.Run(ctx)
		switch {
		case ctx.Err() != nil:
			m.CancelAcquisition()
			return nil
		case err == nil:
			return nil
		case errors.Is(err, readiness.ErrCancelled):
			return err
		}
		logger.Debug("Runtime not ready, waiting for the next check", zap.Error(err))

		select {
		case <-ctx.Done():
			m.CancelAcquisition()
			return nil
		case <-ticks:
		}
	}
}

func serveMetrics(addr string, sess *session) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(sess.registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}
