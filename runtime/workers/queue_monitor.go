package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// QueueMonitorWorker periodically logs the length and capacity of the given channels.
// Reading len and cap of a channel never blocks.
type QueueMonitorWorker struct {
	log      *slog.Logger
	channels []NamedChannel
	interval time.Duration
	// highWatermark is the fill ratio from which a warning is logged instead of a debug line
	highWatermark float64
}

func NewQueueMonitorWorker(log *slog.Logger, channels []NamedChannel, interval time.Duration) *QueueMonitorWorker {
	return &QueueMonitorWorker{log: log, channels: channels, interval: interval, highWatermark: 0.8}
}

func (w *QueueMonitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue monitor")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				w.report(nc)
			}
		}
	}
}

func (w *QueueMonitorWorker) report(nc NamedChannel) {
	v := reflect.ValueOf(nc.Channel)
	if v.Kind() != reflect.Chan {
		w.log.Error("Provided object is not a channel", "name", nc.Name)
		return
	}
	capacity, length := v.Cap(), v.Len()
	if capacity > 0 && float64(length)/float64(capacity) >= w.highWatermark {
		w.log.Warn("Queue almost full", "name", nc.Name, "length", length, "capacity", capacity)
		return
	}
	w.log.Debug("Queue usage", "name", nc.Name, "length", length, "capacity", capacity)
}
