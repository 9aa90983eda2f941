package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/smartcart/internal/app"
	"github.com/matheus3301/smartcart/internal/bus"
	intsync "github.com/matheus3301/smartcart/internal/sync"
	"go.uber.org/zap"
)

func cmdSync(ctx context.Context, a app.App, out *output, args []string) error {
	fs := newFlags("sync")
	clearCache := fs.Bool("clear", false, "")
	if err := fs.Parse(args); err != nil {
		return usage("sync")
	}
	if !a.Monitor.Online() {
		return fmt.Errorf("backend unreachable, changes stay queued")
	}

	stats := a.Sync.SyncPendingChanges(ctx)
	left, err := a.Sync.QueueSize(ctx)
	if err != nil {
		return err
	}
	if *clearCache {
		if left > 0 {
			return fmt.Errorf("%d change(s) still queued, not clearing the cache", left)
		}
		if err := a.Sync.ClearCache(ctx); err != nil {
			return err
		}
	}

	out.emit(map[string]any{"stats": stats, "queued": left}, func() {
		if stats.Skipped {
			fmt.Println("A sync is already running.")
			return
		}
		fmt.Printf("Synced %d, dropped %d, retrying %d, %d still queued\n",
			stats.Synced, stats.Failed, stats.Retrying, left)
	})
	return nil
}

// cmdWatch blocks until interrupted while the engine syncs in the background.
func cmdWatch(ctx context.Context, a app.App, out *output, _ []string) error {
	conn, unsubConn := a.Bus.Subscribe("connectivity.", 8)
	defer unsubConn()
	synced, unsubSync := a.Bus.Subscribe(bus.TopicSyncCompleted, 8)
	defer unsubSync()

	a.Logger.Info("watching", zap.Bool("online", a.Monitor.Online()))
	report := func(evt bus.Event, text string) {
		out.emit(evt, func() { fmt.Printf("%s %s\n", evt.Timestamp.Format(time.TimeOnly), text) })
	}
	// The startup probe may have gone online before the subscriptions above.
	a.Sync.SyncPendingChanges(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-conn:
			if evt.Kind == bus.TopicConnectivityOnline {
				report(evt, "backend reachable")
			} else {
				report(evt, "backend unreachable")
			}
		case evt := <-synced:
			if s, ok := evt.Payload.(intsync.Stats); ok && (s.Synced > 0 || s.Failed > 0) {
				report(evt, fmt.Sprintf("synced %d, dropped %d, retrying %d", s.Synced, s.Failed, s.Retrying))
			}
		}
	}
}
