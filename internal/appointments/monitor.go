package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicbase/scheduler/internal/clock"
	"github.com/clinicbase/scheduler/internal/observability/metrics"
	"github.com/clinicbase/scheduler/pkg/logging"
)

// SweepLock guards against concurrent sweeps when the service is replicated.
// Acquire returns false when another instance holds the lock.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Monitor is the recurring sweep over scheduled appointments: it dispatches
// reminders once the confirmation window opens and lapses unconfirmed
// appointments to no_show once start has passed.
type Monitor struct {
	store        Store
	notifier     Notifier
	clk          clock.Clock
	lock         SweepLock
	window       time.Duration
	interval     time.Duration
	storeTimeout time.Duration
	metrics      *metrics.EngineMetrics
	logger       *logging.Logger
}

// NewMonitor creates a monitor. lock may be nil for single-instance
// deployments. storeTimeout bounds each sweep's store work so a hung
// backend cannot stall the loop.
func NewMonitor(store Store, notifier Notifier, clk clock.Clock, lock SweepLock, window, interval, storeTimeout time.Duration, m *metrics.EngineMetrics, logger *logging.Logger) *Monitor {
	if store == nil {
		panic("appointments: store required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if window <= 0 {
		window = 3 * time.Hour
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{
		store:        store,
		notifier:     notifier,
		clk:          clk,
		lock:         lock,
		window:       window,
		interval:     interval,
		storeTimeout: storeTimeout,
		metrics:      m,
		logger:       logger,
	}
}

// Start runs the sweep loop. Blocks until the context is cancelled; the next
// scheduled run then simply does not occur.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("starting confirmation window monitor",
		"interval", m.interval.String(),
		"window", m.window.String(),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("confirmation window monitor shutting down")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	if err := m.RunOnce(ctx); err != nil {
		// Storage unavailability; retried on the next tick.
		m.logger.Error("sweep failed", "error", err)
	}
}

// RunOnce performs a single sweep. Per-appointment failures are logged and
// skipped; only whole-sweep storage failures are returned.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if m.lock != nil {
		ok, err := m.lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("appointments: acquire sweep lock: %w", err)
		}
		if !ok {
			m.logger.Debug("sweep lock held elsewhere, skipping")
			return nil
		}
		defer m.lock.Release(ctx)
	}

	started := time.Now()
	now := m.clk.Now()

	// Each pass gets a bounded deadline so a hung store call fails the
	// sweep instead of stalling the loop.
	remindCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	err := m.remindDue(remindCtx, now)
	cancel()
	if err != nil {
		return err
	}

	expireCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	err = m.expireOverdue(expireCtx, now)
	cancel()
	if err != nil {
		return err
	}

	m.metrics.ObserveSweepDuration(time.Since(started).Seconds())
	return nil
}

// remindDue dispatches the confirmation reminder for every scheduled
// appointment whose window has opened. The reminder_sent latch is claimed
// before dispatch, so overlapping or repeated sweeps send at most once.
func (m *Monitor) remindDue(ctx context.Context, now time.Time) error {
	due, err := m.store.ListDueReminders(ctx, now, now.Add(m.window))
	if err != nil {
		return err
	}

	for i := range due {
		a := &due[i]
		claimed, err := m.store.MarkReminderSent(ctx, a.ID)
		if err != nil {
			m.logger.Error("failed to latch reminder", "appointment_id", a.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		m.metrics.SweepReminder()
		if m.notifier != nil {
			if err := m.notifier.AppointmentReminder(ctx, a); err != nil {
				m.logger.Warn("reminder dispatch failed", "appointment_id", a.ID, "error", err)
			}
		}
		m.logger.Info("confirmation reminder sent",
			"appointment_id", a.ID,
			"patient_id", a.PatientID,
			"start", a.Start,
		)
	}
	return nil
}

// expireOverdue lapses still-scheduled appointments past their start to
// no_show. A confirm racing the sweep resolves through the version check:
// whichever write commits first wins, the loser just stops.
func (m *Monitor) expireOverdue(ctx context.Context, now time.Time) error {
	overdue, err := m.store.ListOverdueScheduled(ctx, now)
	if err != nil {
		return err
	}

	for i := range overdue {
		a := &overdue[i]
		updated, err := m.store.UpdateStatus(ctx, a.ID, StatusNoShow, a.Version)
		if err != nil {
			if errors.Is(err, ErrStaleVersion) || errors.Is(err, ErrNotFound) {
				m.logger.Debug("no-show transition lost race", "appointment_id", a.ID)
			} else {
				m.logger.Error("failed to mark no-show", "appointment_id", a.ID, "error", err)
			}
			continue
		}
		m.metrics.SweepNoShow()
		m.logger.Info("appointment lapsed to no-show",
			"appointment_id", a.ID,
			"doctor_id", a.DoctorID,
			"start", a.Start,
		)
		if m.notifier != nil {
			if err := m.notifier.AppointmentNoShow(ctx, updated); err != nil {
				m.logger.Warn("no-show notification failed", "appointment_id", a.ID, "error", err)
			}
		}
	}
	return nil
}
