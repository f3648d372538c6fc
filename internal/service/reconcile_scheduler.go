package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/Kerhoff/FundboT/internal/metrics"
)

const (
	// ReconcileLockKey names the lock that keeps sweeps single-instance.
	ReconcileLockKey = "fundbot:reconcile"

	defaultReconcileInterval = 30 * time.Second
	sweepBatchSize           = 500
)

// Locker hands out a lock shared between processes. acquired is false, with
// a nil error, when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error)
}

// SweepReport summarizes one reconciliation pass
type SweepReport struct {
	Skipped   bool
	Pending   int
	Evaluated int
	Settled   int
	Failed    int
}

// Reconciler periodically re-evaluates every pending withdrawal so requests
// whose membership changed, or whose inline evaluation failed, still settle.
type Reconciler struct {
	svc       *Service
	locker    Locker
	interval  time.Duration
	timeout   time.Duration
	batchSize int

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// NewReconciler creates a reconciler for svc. locker may be nil when only
// one process runs.
func (s *Service) NewReconciler(interval time.Duration, locker Locker) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{
		svc:       s,
		locker:    locker,
		interval:  interval,
		timeout:   interval,
		batchSize: sweepBatchSize,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (r *Reconciler) Start() {
	if !r.started.CAS(false, true) {
		return
	}
	r.wg.Add(1)
	go r.run()
	r.svc.logger.WithField("interval", r.interval.String()).Info("Reconciliation scheduler started")
}

// Stop signals the loop to stop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	if !r.started.Load() || !r.stopped.CAS(false, true) {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	r.svc.logger.Info("Reconciliation scheduler stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	// Stop interrupts a long sweep instead of waiting out the timeout.
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := r.Sweep(ctx)
	if err != nil {
		r.svc.logger.WithError(err).WithField("failed", report.Failed).Error("Reconciliation sweep finished with errors")
		return
	}
	if report.Settled > 0 {
		r.svc.logger.WithField("settled", report.Settled).Info("Reconciliation sweep settled withdrawals")
	}
}

// Sweep evaluates quorum for every pending withdrawal once. A sweep that
// starts while another is running in this process, or while another process
// holds the sweep lock, is skipped. One failing transaction does not stop
// the others; their errors are returned together.
func (r *Reconciler) Sweep(ctx context.Context) (report SweepReport, err error) {
	m := r.svc.metrics

	if !r.running.CAS(false, true) {
		m.Sweeps.WithLabelValues(metrics.SweepSkipped).Inc()
		r.svc.logger.Debug("Previous reconciliation sweep still running, skipping")
		return SweepReport{Skipped: true}, nil
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			m.Sweeps.WithLabelValues(metrics.SweepPanic).Inc()
			err = fmt.Errorf("reconciliation sweep panicked: %v", rec)
			r.svc.logger.WithField("panic", rec).Error("Recovered from panic in reconciliation sweep")
		}
		m.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	if r.locker != nil {
		release, acquired, lockErr := r.locker.TryLock(ctx, ReconcileLockKey)
		if lockErr != nil {
			m.Sweeps.WithLabelValues(metrics.SweepFailed).Inc()
			return report, fmt.Errorf("failed to acquire sweep lock: %w", lockErr)
		}
		if !acquired {
			m.Sweeps.WithLabelValues(metrics.SweepSkipped).Inc()
			r.svc.logger.Debug("Sweep lock held by another instance, skipping")
			return SweepReport{Skipped: true}, nil
		}
		defer func() {
			if relErr := release(context.Background()); relErr != nil {
				r.svc.logger.WithError(relErr).Warn("Failed to release sweep lock")
			}
		}()
	}

	var (
		errs      *multierror.Error
		afterID   int64
		remaining int
	)
	for ctx.Err() == nil {
		page, err := r.svc.Transactions.ListPending(ctx, afterID, r.batchSize)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to list pending withdrawals after %d: %w", afterID, err))
			break
		}
		report.Pending += len(page)

		for _, txn := range page {
			if ctx.Err() != nil {
				break
			}

			result, transitioned, evalErr := r.svc.evaluateQuorum(ctx, txn.ID)
			report.Evaluated++
			if evalErr != nil {
				report.Failed++
				remaining++
				errs = multierror.Append(errs, fmt.Errorf("transaction %d: %w", txn.ID, evalErr))
				continue
			}
			if transitioned {
				report.Settled++
			}
			if result != nil && result.IsPendingWithdrawal() {
				remaining++
			}
		}

		if len(page) == 0 || r.batchSize <= 0 || len(page) < r.batchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}
	if ctx.Err() != nil {
		errs = multierror.Append(errs, ctx.Err())
	}
	m.PendingWithdrawals.Set(float64(remaining))

	if err := errs.ErrorOrNil(); err != nil {
		result := metrics.SweepPartial
		if report.Failed == report.Evaluated || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			result = metrics.SweepFailed
		}
		m.Sweeps.WithLabelValues(result).Inc()
		return report, err
	}

	m.Sweeps.WithLabelValues(metrics.SweepOK).Inc()
	return report, nil
}
