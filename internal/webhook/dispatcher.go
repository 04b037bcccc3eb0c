// Package webhook signs and delivers event notifications to subscriber
// endpoints.
//
// Events are handed to the Dispatcher through a bounded queue so the caller
// that committed the state change never waits on delivery. Worker goroutines
// fan each event out to the matching subscriptions; every subscription gets its
// own goroutine, so a slow or failing endpoint cannot hold up another. Retries
// for one (subscription, event) pair run sequentially in that goroutine and
// wait on the injected clock between attempts.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/valyala/fasthttp"
	"github.com/zoobzio/clockz"
)

type Config struct {
	Workers       int
	QueueSize     int
	Timeout       time.Duration
	DefaultPolicy models.RetryPolicy
	Clock         clockz.Clock
	Client        *fasthttp.Client
	Logger        *slog.Logger
}

type Dispatcher struct {
	subs          store.SubscriptionStore
	client        *fasthttp.Client
	clock         clockz.Clock
	timeout       time.Duration
	defaultPolicy models.RetryPolicy
	logger        *slog.Logger

	queue chan models.Event

	mu     sync.RWMutex
	closed bool

	workers  sync.WaitGroup
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates the dispatcher and starts its workers.
func NewDispatcher(subs store.SubscriptionStore, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Client == nil {
		cfg.Client = &fasthttp.Client{Name: "paysandbox-webhooks"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		subs:          subs,
		client:        cfg.Client,
		clock:         cfg.Clock,
		timeout:       cfg.Timeout,
		defaultPolicy: cfg.DefaultPolicy.Normalize(),
		logger:        cfg.Logger.With("component", "webhook_dispatcher"),
		queue:         make(chan models.Event, cfg.QueueSize),
		ctx:           ctx,
		cancel:        cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue hands ev to the workers without waiting for delivery.
func (d *Dispatcher) Enqueue(_ context.Context, ev models.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errs.ErrDispatcherClosed
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		return errs.ErrQueueFull
	}
}

// Close stops accepting events, drains the queue and waits for in-flight
// deliveries. If ctx ends first, pending retry waits are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errs.ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()

	for ev := range d.queue {
		d.dispatch(ev)
	}
}

func (d *Dispatcher) dispatch(ev models.Event) {
	subs, err := d.subs.ListSubscriptions(d.ctx, ev.OwnerID)
	if err != nil {
		d.logger.Error("failed to load subscriptions", "owner_id", ev.OwnerID, "event", ev.Type, "error", err)
		return
	}

	for _, sub := range subs {
		if !sub.Active || !sub.Wants(ev.Type) {
			continue
		}

		d.inflight.Add(1)
		go func(sub *models.WebhookSubscription) {
			defer d.inflight.Done()
			d.deliver(d.ctx, sub, ev, d.policyFor(sub))
		}(sub)
	}
}

// Deliver performs one synchronous single-attempt delivery, used for test
// pings from the subscription owner.
func (d *Dispatcher) Deliver(ctx context.Context, sub *models.WebhookSubscription, ev models.Event) models.DeliveryReport {
	policy := d.policyFor(sub)
	policy.MaxAttempts = 1
	return d.deliver(ctx, sub, ev, policy)
}

func (d *Dispatcher) policyFor(sub *models.WebhookSubscription) models.RetryPolicy {
	policy := sub.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = d.defaultPolicy.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = d.defaultPolicy.BaseDelay
	}
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = d.defaultPolicy.BackoffMultiplier
	}
	return policy
}

func (d *Dispatcher) deliver(ctx context.Context, sub *models.WebhookSubscription, ev models.Event, policy models.RetryPolicy) models.DeliveryReport {
	report := models.DeliveryReport{DeliveryID: "evt_" + uuid.NewString()}
	logger := d.logger.With("webhook_id", sub.ID, "event", ev.Type, "delivery_id", report.DeliveryID)

	// stats must be written even when shutdown abandons the retry loop
	statsCtx := context.WithoutCancel(ctx)

	envelope := models.WebhookEnvelope{
		Event:     ev.Type,
		Data:      ev.Data,
		Timestamp: ev.OccurredAt.UTC(),
		ID:        report.DeliveryID,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("failed to marshal webhook envelope", "error", err)
		report.Error = err.Error()
		d.recordOutcome(statsCtx, logger, sub.ID, false)
		return report
	}

	headers := map[string]string{
		HeaderSignature: Sign(body, sub.Secret),
		HeaderEvent:     string(ev.Type),
		HeaderDelivery:  report.DeliveryID,
		HeaderTimestamp: strconv.FormatInt(envelope.Timestamp.Unix(), 10),
	}

	for attempt := 1; ; attempt++ {
		status, err := d.post(sub.URL, body, headers)
		report.Attempts = attempt
		report.StatusCode = status

		if incErr := d.subs.IncrementAttempts(statsCtx, sub.ID); incErr != nil {
			logger.Error("failed to increment delivery attempts", "error", incErr)
		}

		if err == nil {
			report.Delivered = true
			report.Error = ""
			logger.Info("webhook delivered", "attempt", attempt, "status_code", status)
			d.recordOutcome(statsCtx, logger, sub.ID, true)
			return report
		}

		report.Error = err.Error()
		logger.Warn("webhook attempt failed", "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)

		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-d.clock.After(policy.Delay(attempt)):
		case <-ctx.Done():
			logger.Warn("webhook retries abandoned", "attempt", attempt, "error", ctx.Err())
			d.recordOutcome(statsCtx, logger, sub.ID, false)
			return report
		}
	}

	logger.Error("webhook delivery abandoned", "attempts", report.Attempts)
	d.recordOutcome(statsCtx, logger, sub.ID, false)
	return report
}

func (d *Dispatcher) recordOutcome(ctx context.Context, logger *slog.Logger, id string, delivered bool) {
	if err := d.subs.RecordOutcome(ctx, id, delivered, d.clock.Now()); err != nil {
		logger.Error("failed to record delivery outcome", "error", err)
	}
}

func (d *Dispatcher) post(url string, body []byte, headers map[string]string) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := d.client.DoTimeout(req, resp, d.timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("attempt timed out after %s: %w", d.timeout, err)
		}
		return 0, &errs.DeliveryError{URL: url, Err: err}
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return code, &errs.DeliveryError{URL: url, StatusCode: code}
	}
	return code, nil
}
