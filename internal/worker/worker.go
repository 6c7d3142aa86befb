// Package worker reacts to explorer events published on the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/explorer/internal/bus"
	"github.com/opensource-finance/explorer/internal/domain"
)

// Refresher is the cache owner the worker keeps in sync.
type Refresher interface {
	// Refresh drops every cached dataset.
	Refresh(ctx context.Context, trigger string) error

	// InvalidateReports drops the cached report ledger.
	InvalidateReports(ctx context.Context)
}

// Worker subscribes to artifact, refresh and report events. Artifact
// changes always refresh; refresh and report events only act when another
// instance published them.
type Worker struct {
	bus       domain.EventBus
	refresher Refresher

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new event worker.
func NewWorker(eventBus domain.EventBus, refresher Refresher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       eventBus,
		refresher: refresher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to every handled topic.
func (w *Worker) Start() error {
	handlers := map[string]domain.MessageHandler{
		domain.TopicArtifactsChanged: w.handleArtifactsChanged,
		domain.TopicCacheRefreshed:   w.handleCacheRefreshed,
		domain.TopicReportSubmitted:  w.handleReportSubmitted,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, topic := range []string{domain.TopicArtifactsChanged, domain.TopicCacheRefreshed, domain.TopicReportSubmitted} {
		sub, err := w.bus.Subscribe(w.ctx, topic, handlers[topic])
		if err != nil {
			w.unsubscribeAll()
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "topics", len(w.subscriptions))
	return nil
}

func (w *Worker) handleArtifactsChanged(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var ev domain.ArtifactsChanged
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Warn("failed to parse artifact change", "message_id", msg.ID, "error", err)
	}

	if err := w.refresher.Refresh(ctx, domain.TriggerArtifacts); err != nil {
		slog.Error("refresh after artifact change failed",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("caches refreshed after artifact change",
		"files", len(ev.Paths),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) handleCacheRefreshed(ctx context.Context, msg *domain.Message) error {
	if bus.FromSelf(msg) {
		return nil
	}

	var ev domain.CacheRefreshed
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return err
	}
	// Artifact refreshes reach every instance directly.
	if ev.Trigger != domain.TriggerManual {
		return nil
	}

	slog.Info("peer refreshed caches", "source", msg.Metadata["source"])
	return w.refresher.Refresh(ctx, domain.TriggerPeer)
}

func (w *Worker) handleReportSubmitted(ctx context.Context, msg *domain.Message) error {
	if bus.FromSelf(msg) {
		return nil
	}

	var ev domain.ReportSubmitted
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return err
	}

	slog.Debug("peer submitted report",
		"group_id", ev.GroupID,
		"source", msg.Metadata["source"],
	)
	w.refresher.InvalidateReports(ctx)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	w.unsubscribeAll()
	w.mu.Unlock()

	slog.Info("worker stopped")
	return nil
}

func (w *Worker) unsubscribeAll() {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
