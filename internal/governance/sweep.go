package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/events"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// DefaultSweepInterval is how often the Sweeper runs when not configured.
const DefaultSweepInterval = 30 * time.Second

// SweepExpired moves every overdue pending proposal to expired and returns
// how many it moved. Expiry credits no rule. Proposals reviewed while the
// sweep runs are skipped, so a second call right after the first returns 0.
func (e *Engine) SweepExpired(ctx context.Context) (count int, err error) {
	ctx, span := e.tracer.Start(ctx, "governance.sweep")
	defer func() {
		span.SetAttributes(attribute.Int("expired", count))
		endSpan(span, err)
	}()

	start := time.Now()
	now := e.clock()
	defer func() { e.metrics.RecordSweep(count, time.Since(start)) }()

	for {
		batch, err := e.store.ListExpiredPending(ctx, now, e.cfg.SweepBatchSize)
		if err != nil {
			return count, fmt.Errorf("listing expired proposals: %w", err)
		}

		moved := 0
		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			expired, err := e.expire(ctx, p.ID, now)
			if errors.Is(err, store.ErrConflict) {
				e.metrics.RecordConflict("sweep")
				continue
			}
			if err != nil {
				return count, err
			}
			moved++
			count++
			e.metrics.RecordDecision(string(action.StatusExpired))
			e.publish(ctx, events.ActionEvent(expired, audit.SystemActor, now))
		}

		if len(batch) < e.cfg.SweepBatchSize || moved == 0 {
			break
		}
	}

	if count > 0 {
		e.logger.Info("expired overdue proposals", zap.Int("count", count))
	}
	return count, nil
}

func (e *Engine) expire(ctx context.Context, id string, now time.Time) (*action.Proposal, error) {
	var expired *action.Proposal
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetAction(ctx, id)
		if err != nil {
			return err
		}
		if !cur.IsOverdue(now) {
			return store.ErrConflict
		}
		next, err := cur.Transition(action.StatusExpired)
		if err != nil {
			return err
		}
		if err := tx.UpdateActionIfStatus(ctx, next, action.StatusPending); err != nil {
			return err
		}
		expired = next
		return tx.AppendAudit(ctx, audit.ForAction(audit.EventExpired, audit.SystemActor, next, now))
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("expiring action %s: %w", id, err)
	}
	return expired, err
}

// ExpirySweeper is what the Sweeper drives.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper runs SweepExpired on an interval in the background.
//
// Start and Stop are safe for concurrent use; Stop waits for an in-flight
// sweep to finish.
type Sweeper struct {
	interval time.Duration
	target   ExpirySweeper
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the time between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSweeper creates a sweeper. It does not start until Start is called.
func NewSweeper(target ExpirySweeper, logger *zap.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if target == nil {
		return nil, fmt.Errorf("sweep target cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		interval: DefaultSweepInterval,
		target:   target,
		logger:   logger.Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop. It returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	go s.run(ctx, s.stopCh, s.doneCh)
	return nil
}

// Stop signals the loop to exit and waits for it. Stopping a stopped
// sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("expiry sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepOnce runs one sweep, recovering from panics so one bad pass does not
// kill the loop.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("expiry sweep panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("expiry sweep completed", zap.Int("expired", n))
	}
}
