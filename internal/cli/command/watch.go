package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/libresprite/recovery/internal/infra/confloader"
	"github.com/libresprite/recovery/internal/infra/shutdown"
	"github.com/libresprite/recovery/internal/recovery"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

const defaultWatchDebounce = 500 * time.Millisecond

var summaryStates = []recovery.State{
	recovery.StateCrashed,
	recovery.StateRunning,
	recovery.StateEmpty,
	recovery.StateExpired,
	recovery.StateCorrupt,
}

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow the backup root and print session counts as they change",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period after a change before rescanning",
				Value: defaultWatchDebounce,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (default: metrics.addr)",
			},
		},
		Action: runWatch,
	}
}

// newRegistry returns a registry with the recorder and a collector that
// summarizes root on every scrape.
func newRegistry(c *cli.Context, root string) (*prometheus.Registry, *metric.Recorder) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rec := metric.NewRecorder(reg)
	reg.MustRegister(metric.NewRootCollector(root, func() (metric.RootStats, error) {
		return rootStats(c.Context, root, scanOptions(c))
	}))
	return reg, rec
}

func rootStats(ctx context.Context, root string, opts recovery.ScanOptions) (metric.RootStats, error) {
	report, err := recovery.Scan(ctx, root, opts)
	if err != nil {
		return metric.RootStats{}, err
	}
	defer report.Close()

	stats := metric.RootStats{Sessions: map[string]int{}}
	for _, st := range summaryStates {
		stats.Sessions[string(st)] = 0
	}
	for _, e := range report.Entries {
		stats.Sessions[string(e.State)]++
		if n, err := e.Session.DiskUsage(); err == nil {
			stats.Bytes += n
		}
	}
	return stats, nil
}

func summarize(report *recovery.Report) string {
	counts := map[recovery.State]int{}
	for _, e := range report.Entries {
		if !e.Pruned {
			counts[e.State]++
		}
	}
	parts := make([]string, 0, len(summaryStates))
	for _, st := range summaryStates {
		parts = append(parts, fmt.Sprintf("%s=%d", st, counts[st]))
	}
	return strings.Join(parts, " ")
}

func runWatch(c *cli.Context) error {
	cfg := getConfig(c)
	log := getLogger(c)
	root := cfg.Recovery.BackupRoot

	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("create backup root: %w", err)
	}

	reg, rec := newRegistry(c, root)
	opts := scanOptions(c)
	opts.Metrics = rec

	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog()))
	if err != nil {
		return err
	}
	if err := w.Watch(root); err != nil {
		_ = w.Stop()
		return err
	}

	var (
		mu   sync.Mutex
		last string
	)
	rescan := func() {
		report, err := recovery.Scan(c.Context, root, opts)
		if err != nil {
			if c.Context.Err() == nil {
				log.Warn("rescan failed", "root", root, "error", err)
			}
			return
		}
		defer report.Close()
		for _, e := range report.Entries {
			if e.State == recovery.StateCrashed || e.State == recovery.StateRunning {
				// Catch new backups inside sessions, not only new sessions.
				_ = w.Watch(e.Session.Path())
			}
		}
		line := summarize(report)
		mu.Lock()
		defer mu.Unlock()
		if line != last {
			last = line
			fmt.Fprintln(stdout(c), line)
		}
	}

	changes := make(chan struct{}, 1)
	w.OnChange(func(e confloader.Event) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	w.StartAsync()
	rescan()

	loopDone := make(chan struct{})
	stopLoop := make(chan struct{})
	go func() {
		defer close(loopDone)
		debounce := c.Duration("debounce")
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-changes:
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				rescan()
			case <-stopLoop:
				if timer != nil {
					timer.Stop()
				}
				return
			}
		}
	}()

	handler := shutdown.NewHandler(cfg.Recovery.ShutdownGrace)
	handler.OnShutdown(func(ctx context.Context) error {
		close(stopLoop)
		select {
		case <-loopDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		return w.Stop()
	})

	addr := c.String("metrics-addr")
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metric.Handler(reg))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "addr", addr, "error", err)
				handler.Trigger()
			}
		}()
		handler.OnShutdown(srv.Shutdown)
		log.Info("serving metrics", "addr", addr)
	}

	log.Info("watching backup root", "root", root)
	return handler.Wait(c.Context)
}
