// Package dispatch applies claimed webhook events after the platform has been
// acknowledged. Work runs on a fixed worker pool detached from the request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/events"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errSkipped marks an event that was acknowledged without side effects.
var errSkipped = errors.New("event skipped")

// ProfileFetcher loads a platform user's profile. The outbound client
// satisfies it.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, tenantID uuid.UUID, userID string) (*models.Profile, error)
}

type Options struct {
	Workers   int
	QueueSize int
	// PerEnvelope bounds how many events of one envelope run at once.
	PerEnvelope int
	// EventTimeout bounds a single event, retries included.
	EventTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PerEnvelope <= 0 {
		o.PerEnvelope = 10
	}
	if o.EventTimeout <= 0 {
		o.EventTimeout = 30 * time.Second
	}
}

// Summary counts how the events of one envelope ended.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

type job struct {
	tenantID uuid.UUID
	events   []models.WebhookEvent
}

type Dispatcher struct {
	profiles  ProfileFetcher
	contacts  repository.ContactSync
	publisher events.Publisher
	opts      Options
	logger    *zap.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(profiles ProfileFetcher, contacts repository.ContactSync, publisher events.Publisher, opts Options, logger *zap.Logger) *Dispatcher {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		profiles:  profiles,
		contacts:  contacts,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With(zap.String("component", "dispatcher")),
		jobs:      make(chan job, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.Dispatch(d.ctx, j.tenantID, j.events)
			}
		}()
	}
	d.logger.Info("dispatcher started",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
	)
}

// Submit hands events to the pool and returns immediately. When the queue is
// full the envelope runs on its own goroutine instead of being dropped.
func (d *Dispatcher) Submit(tenantID uuid.UUID, evs []models.WebhookEvent) {
	if len(evs) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Error("dispatcher closed, events not processed",
			zap.String("tenant_id", tenantID.String()),
			zap.Strings("event_ids", eventIDs(evs)),
		)
		return
	}

	select {
	case d.jobs <- job{tenantID: tenantID, events: evs}:
	default:
		d.logger.Warn("dispatch queue full, running envelope detached",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("events", len(evs)),
		)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Dispatch(d.ctx, tenantID, evs)
		}()
	}
}

// Shutdown stops accepting work and waits for queued envelopes to finish.
// If ctx expires first, in-flight events are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}

// Dispatch runs every event concurrently and waits for all of them. One
// event failing never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, evs []models.WebhookEvent) Summary {
	var succeeded, failed, skipped atomic.Int32

	var g errgroup.Group
	g.SetLimit(d.opts.PerEnvelope)

	for _, ev := range evs {
		g.Go(func() error {
			log := d.logger.With(
				zap.String("tenant_id", tenantID.String()),
				zap.String("event_id", ev.WebhookEventID),
				zap.String("event_type", ev.Type),
				zap.String("user_id", ev.Source.UserID),
			)

			err := d.run(ctx, tenantID, ev)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errSkipped):
				skipped.Add(1)
			default:
				failed.Add(1)
				log.Error("event handling failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	d.logger.Info("envelope dispatched",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
	)
	return s
}

func (d *Dispatcher) run(ctx context.Context, tenantID uuid.UUID, ev models.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.opts.EventTimeout)
	defer cancel()

	switch ev.Type {
	case models.EventTypeFollow:
		return d.handleFollow(ctx, tenantID, ev)
	case models.EventTypeUnfollow:
		return d.handleUnfollow(ctx, tenantID, ev)
	case models.EventTypeMessage:
		// Inbound messages are acknowledged only; conversation storage lives
		// elsewhere in the CRM.
		return errSkipped
	default:
		d.logger.Debug("unhandled event type",
			zap.String("event_type", ev.Type),
			zap.String("event_id", ev.WebhookEventID),
		)
		return errSkipped
	}
}

func eventIDs(evs []models.WebhookEvent) []string {
	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.WebhookEventID
	}
	return ids
}
