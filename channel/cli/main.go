// Command cli runs one byte channel as a service: stdin is written into the
// channel and the channel is drained to stdout. SIGHUP clears the channel.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/webbmaffian/go-gbl/channel"
	"github.com/webbmaffian/go-gbl/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gblfifo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()

	cfg, err := config.Load(cli.ConfigPath)

	if err != nil {
		return err
	}

	cli.apply(cfg)

	if err = cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Draining the input to the end also stops the service.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		registry   *prometheus.Registry
		registerer prometheus.Registerer
	)

	if cfg.Metrics.Addr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registerer = registry
	}

	// A channel that cannot be allocated is never handed out.
	ch, err := channel.NewByteChannel(cfg.Channel.Capacity, cfg.ChannelOptions(logger, registerer)...)

	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	defer ch.Close()

	g, gctx := errgroup.WithContext(ctx)

	writer, err := ch.Open(gctx, 0)

	if err != nil {
		return err
	}

	defer writer.Close()

	reader, err := ch.Open(gctx, channel.ONonblock)

	if err != nil {
		return err
	}

	defer reader.Close()

	err = reader.Subscribe(channel.NotifierFunc(func(n channel.Notification) {
		logger.Debug("data available", "occupied", n.Occupied, "seq", n.Seq)
	}))

	if err != nil {
		return err
	}

	eof := make(chan struct{})

	g.Go(func() error {
		defer close(eof)
		return pumpIn(gctx, os.Stdin, writer)
	})

	g.Go(func() error {
		defer cancel()
		return pumpOut(gctx, reader, os.Stdout, eof)
	})

	g.Go(func() error {
		return handleHangup(gctx, reader, logger)
	})

	if registry != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics, registry, logger)
		})
	}

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return runDashboard(gctx, ch, cfg.Watch.Interval)
		})
	}

	if err = g.Wait(); err != nil && !channel.IsTemporary(err) && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// pumpIn copies src into the channel. Reading src cannot be interrupted, so it
// happens on a detached goroutine.
func pumpIn(ctx context.Context, src io.Reader, w *channel.Handle) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		r := bufio.NewReader(src)

		for {
			buf := make([]byte, 512)
			n, err := r.Read(buf)

			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}

			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read input: %w", err)
		case chunk := <-chunks:
			if _, err := w.WriteAll(chunk); err != nil {
				if channel.IsTemporary(err) {
					return nil
				}

				return err
			}
		}
	}
}

// pumpOut drains the channel into dst using readiness polling on a
// non-blocking handle. It returns once the input is exhausted and the
// channel is empty.
func pumpOut(ctx context.Context, r *channel.Handle, dst io.Writer, eof <-chan struct{}) error {
	waiter := channel.NewPollWaiter()
	defer waiter.Stop()

	buf := make([]byte, r.Channel().Cap())

	for {
		if !r.Poll(waiter).Readable() {
			select {
			case <-ctx.Done():
				return nil
			case <-waiter.C():
			case <-eof:
				if r.Channel().Empty() {
					return nil
				}

				// Wait for the writer's last bytes
				select {
				case <-waiter.C():
				case <-ctx.Done():
					return nil
				}
			}

			continue
		}

		n, err := r.Read(buf)

		if errors.Is(err, channel.ErrWouldBlock) {
			continue
		}

		if err != nil {
			return err
		}

		if _, err = dst.Write(buf[:n]); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

func handleHangup(ctx context.Context, h *channel.Handle, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := h.Control(channel.OpClear); err != nil {
				return err
			}

			logger.Info("channel cleared on SIGHUP")
		}
	}
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", cfg.Addr, "path", cfg.Path)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint: %w", err)
	}

	return nil
}

func runDashboard(ctx context.Context, ch *channel.ByteChannel, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	writer := uilive.New()
	writer.Out = os.Stderr

	state := writer.Newline()
	occupied := writer.Newline()
	traffic := writer.Newline()
	waiting := writer.Newline()
	events := writer.Newline()

	writer.Start()
	defer writer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := ch.Stats()

			fmt.Fprintf(state, "State: %s\n", ch.State())
			fmt.Fprintf(occupied, "Occupied: %d / %d (%.0f%%)\n", s.Occupied, s.Capacity, s.Utilization()*100)
			fmt.Fprintf(traffic, "Written: %d bytes | Read: %d bytes\n", s.BytesWritten, s.BytesRead)
			fmt.Fprintf(waiting, "Waiting: %d readers, %d writers | Handles: %d\n", s.ReadersWaiting, s.WritersWaiting, s.Handles)
			fmt.Fprintf(events, "Would block: %d | Interrupted: %d | Clears: %d | Notifications: %d\n", s.WouldBlock, s.Interrupted, s.Clears, s.Notifications)
		}
	}
}
