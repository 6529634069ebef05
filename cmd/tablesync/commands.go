package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/tablesync"
	"github.com/loykin/tablesync/pkg/client"
)

const stopTimeout = 10 * time.Second

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runDaemon starts the runtime and blocks until ctx is done, then shuts the
// module down and prints the final statistics to out.
func runDaemon(ctx context.Context, configPath string, flags RunFlags, out io.Writer) error {
	cfg, err := tablesync.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.APIListen != "" {
		cfg.API.Listen = flags.APIListen
	}
	if flags.MetricsListen != "" {
		cfg.Metrics.Listen = flags.MetricsListen
	}
	if flags.HighFrequency {
		cfg.Writer.HighFrequency = true
		cfg.Peer.HighFrequency = true
	}

	logger := tablesync.NewLogger(cfg)
	rt, err := tablesync.New(cfg, tablesync.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	if err := rt.Start(); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = rt.Stop(stopCtx)
		if errors.Is(err, tablesync.ErrSpawnFailed) {
			return fmt.Errorf("module init failed: %w", err)
		}
		return fmt.Errorf("failed to start: %w", err)
	}
	_, _ = fmt.Fprintf(out, "tablesync running (status=%s)\n", rt.Status())

	<-ctx.Done()

	_, _ = fmt.Fprintln(out, "Shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	stopErr := rt.Stop(stopCtx)

	st := rt.Stats()
	_, _ = fmt.Fprintf(out, "final stats: %s runtime=%s\n", st, st.Uptime.Round(time.Millisecond))
	if n := rt.HistoryDropped(); n > 0 {
		_, _ = fmt.Fprintf(out, "history events dropped: %d\n", n)
	}
	return stopErr
}

func newAPIClient(flags APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
}

func requireReachable(ctx context.Context, c *client.Client, flags APIFlags) error {
	if !c.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s", flags.APIUrl)
	}
	return nil
}

func cmdStatus(ctx context.Context, c *client.Client, flags APIFlags, out io.Writer) error {
	if err := requireReachable(ctx, c, flags); err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	if flags.JSON {
		return printJSON(out, map[string]any{"status": st, "stats": stats})
	}
	printStatus(out, st)
	_, _ = fmt.Fprintf(out, "uptime: %s\n", stats.Uptime.Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "bus: published=%d consumed=%d drops=%d pending=%d/%d\n",
		stats.Bus.Published, stats.Bus.Consumed, stats.Bus.Dropped, stats.Bus.Pending, stats.Bus.Capacity)
	return nil
}

func cmdStart(ctx context.Context, c *client.Client, flags APIFlags, out io.Writer) error {
	if err := requireReachable(ctx, c, flags); err != nil {
		return err
	}
	st, err := c.Init(ctx)
	if err != nil {
		return err
	}
	if flags.JSON {
		return printJSON(out, st)
	}
	printStatus(out, st)
	return nil
}

func cmdStop(ctx context.Context, c *client.Client, flags APIFlags, out io.Writer) error {
	if err := requireReachable(ctx, c, flags); err != nil {
		return err
	}
	st, err := c.Shutdown(ctx, flags.Emergency)
	if err != nil {
		return err
	}
	if flags.JSON {
		return printJSON(out, st)
	}
	printStatus(out, st)
	return nil
}
