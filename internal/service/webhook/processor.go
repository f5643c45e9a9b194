package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/waba-sync/internal/model"
)

// lockName is the singleton lock row shared by every drain instance.
const lockName = "webhook_drain"

// CycleResult is the summary returned to the scheduler. AlreadyRunning is
// a normal outcome, not an error: a second concurrent caller gets it and
// mutates nothing.
type CycleResult struct {
	Processed      int  `json:"processed"`
	Succeeded      int  `json:"succeeded"`
	Failed         int  `json:"failed"`
	AlreadyRunning bool `json:"already_running,omitempty"`
}

// RunCycle drains one bounded batch of pending webhook events. At most one
// cycle runs system-wide at a time; the lock lease bounds how long a
// crashed cycle can block its successors. A single event's failure never
// aborts the batch — only infrastructure failures before any event is
// claimed surface as an error.
func (s *Service) RunCycle(ctx context.Context) (*CycleResult, error) {
	timer := prometheus.NewTimer(s.metrics.CycleDuration)
	defer timer.ObserveDuration()

	acquired, err := s.locks.TryAcquire(ctx, lockName, s.cfg.LockLease)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		s.metrics.CyclesSkipped.Inc()
		s.logger.Debug("drain cycle already running, skipping")
		return &CycleResult{AlreadyRunning: true}, nil
	}
	defer func() {
		// A failed release is harmless: the lease expires on its own,
		// so log and move on.
		if err := s.locks.Release(ctx, lockName); err != nil {
			s.logger.Error(err, "failed to release cycle lock")
		}
	}()

	events, err := s.events.GetPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	if len(events) == 0 {
		return &CycleResult{}, nil
	}

	ids := make([]uuid.UUID, len(events))
	for i, evt := range events {
		ids[i] = evt.ID
	}
	// One bulk flip to PROCESSING: a crash from here on leaves the batch
	// visibly in flight instead of silently re-claimable.
	if err := s.events.MarkProcessing(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to mark batch processing: %w", err)
	}
	s.metrics.QueueDepth.Set(float64(len(events)))

	result := &CycleResult{Processed: len(events)}
	outcomes := make([]model.EventOutcome, 0, len(events))
	for _, evt := range events {
		if err := s.processEvent(ctx, evt); err != nil {
			s.logger.Error(err, "failed to process webhook event", "event_id", evt.ID.String())
			errStr := err.Error()
			outcomes = append(outcomes, model.EventOutcome{
				ID:     evt.ID,
				Status: model.WebhookEventStatusFailed,
				Error:  &errStr,
			})
			result.Failed++
			s.metrics.EventsFailed.Inc()
			continue
		}
		outcomes = append(outcomes, model.EventOutcome{
			ID:     evt.ID,
			Status: model.WebhookEventStatusCompleted,
		})
		result.Succeeded++
		s.metrics.EventsProcessed.Inc()
	}

	if err := s.events.MarkOutcomes(ctx, outcomes); err != nil {
		return result, fmt.Errorf("failed to persist event outcomes: %w", err)
	}
	return result, nil
}

// processEvent decodes and routes one queued event, converting panics in
// handler code into per-event failures so the rest of the batch proceeds.
func (s *Service) processEvent(ctx context.Context, evt *model.WebhookEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing event: %v", p)
		}
	}()

	var payload model.WebhookPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		// Malformed payloads are logged and completed, never left to
		// clog the queue.
		s.logger.Warn("skipping malformed webhook payload", "event_id", evt.ID.String())
		return nil
	}
	return s.Route(ctx, &payload)
}
