// ABOUTME: Idle detection scan: signals shutdown to stale agents, then marks them offline
// ABOUTME: Runs on its own timer, tolerates stale reads, never deletes records

package registry

import (
	"context"
	"log/slog"
	"time"
)

// ShutdownSignaler delivers a shutdown request to an agent. Implemented by
// the mailbox service; kept as an interface so the scanner tests without a
// durable log.
type ShutdownSignaler interface {
	SignalShutdown(ctx context.Context, guid string, graceful bool, reason string) error
}

// IdleScanner periodically flags agents whose heartbeat is stale and whose
// task count is zero. Flagged agents first receive a graceful shutdown
// request; if they are still online after the grace period they are marked
// offline locally. Records are never deleted.
type IdleScanner struct {
	registry *Registry
	signaler ShutdownSignaler
	logger   *slog.Logger

	// IdleTimeout is how stale a heartbeat may be before the agent counts
	// as idle. Grace is how long after the shutdown request the agent may
	// stay online before being marked offline.
	IdleTimeout time.Duration
	Interval    time.Duration
	Grace       time.Duration
}

// NewIdleScanner wires a scanner with the given policy.
func NewIdleScanner(r *Registry, signaler ShutdownSignaler, idleTimeout, interval, grace time.Duration, logger *slog.Logger) *IdleScanner {
	return &IdleScanner{
		registry:    r,
		signaler:    signaler,
		logger:      logger.With("component", "idle-scanner"),
		IdleTimeout: idleTimeout,
		Interval:    interval,
		Grace:       grace,
	}
}

// Run scans on the configured interval until ctx is cancelled.
func (s *IdleScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.logger.Info("idle scanner started",
		"idle_timeout", s.IdleTimeout, "interval", s.Interval, "grace", s.Grace)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idle scanner stopped")
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce runs a single pass. Exported so the coordinator can trigger an
// immediate scan and tests can drive the scanner without timers.
func (s *IdleScanner) ScanOnce(ctx context.Context) {
	agents, err := s.registry.List(ctx, Filter{Status: StatusOnline})
	if err != nil {
		s.logger.Error("idle scan failed to list agents", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, a := range agents {
		if a.CurrentTaskCount != 0 {
			continue
		}
		if now.Sub(a.LastHeartbeat) < s.IdleTimeout {
			continue
		}

		if a.ShutdownRequested == nil {
			s.requestShutdown(ctx, a, now)
			continue
		}
		if now.Sub(*a.ShutdownRequested) >= s.Grace {
			// Unresponsive past the grace period; flip status locally.
			if err := s.registry.MarkOffline(ctx, a.GUID); err != nil {
				s.logger.Error("marking idle agent offline failed", "guid", a.GUID, "error", err)
			}
		}
	}
}

func (s *IdleScanner) requestShutdown(ctx context.Context, a Agent, now time.Time) {
	if err := s.signaler.SignalShutdown(ctx, a.GUID, true, "idle-timeout"); err != nil {
		// Best effort; the next scan retries.
		s.logger.Warn("shutdown signal failed", "guid", a.GUID, "error", err)
		return
	}

	_, err := s.registry.mutate(ctx, a.GUID, func(rec *Agent) error {
		// Another scanner replica or a fresh heartbeat may have raced us;
		// only stamp the request if the agent still looks idle.
		if rec.ShutdownRequested == nil && rec.CurrentTaskCount == 0 {
			t := now
			rec.ShutdownRequested = &t
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("recording shutdown request failed", "guid", a.GUID, "error", err)
		return
	}
	s.logger.Info("idle agent signaled for shutdown",
		"guid", a.GUID, "handle", a.Handle, "last_heartbeat", a.LastHeartbeat)
}
