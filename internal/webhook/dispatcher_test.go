package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

type receiver struct {
	server *httptest.Server
	hits   atomic.Int32

	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func newReceiver(t *testing.T, status func(hit int32) int) *receiver {
	r := &receiver{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		hit := r.hits.Add(1)

		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()

		w.WriteHeader(status(hit))
	}))
	t.Cleanup(r.server.Close)
	return r
}

func always(code int) func(int32) int {
	return func(int32) int { return code }
}

func addSubscription(t *testing.T, s store.SubscriptionStore, owner, url string, active bool, events ...constants.EventType) *models.WebhookSubscription {
	t.Helper()
	sub := &models.WebhookSubscription{
		ID:          "wh_" + uuid.NewString(),
		OwnerID:     owner,
		URL:         url,
		Secret:      "whsec_" + uuid.NewString(),
		Events:      events,
		Active:      active,
		RetryPolicy: models.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, BackoffMultiplier: 2},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateSubscription(context.Background(), sub))
	return sub
}

func completedEvent(owner string) models.Event {
	ev, _ := models.NewEvent(constants.EventSessionCompleted, owner, models.SessionEventData{
		SessionID: "cs_" + uuid.NewString(),
		Status:    constants.StatusCompleted,
		Amount:    100000,
		Currency:  constants.CurrencyNGN,
	}, time.Now())
	return ev
}

func newTestDispatcher(t *testing.T, s store.SubscriptionStore, clock clockz.Clock) *Dispatcher {
	d := NewDispatcher(s, Config{
		Workers:   2,
		QueueSize: 16,
		Timeout:   time.Second,
		Clock:     clock,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Close(ctx)
	})
	return d
}

func stats(t *testing.T, s store.SubscriptionStore, id string) models.DeliveryStats {
	sub, err := s.GetSubscription(context.Background(), id)
	require.NoError(t, err)
	return sub.Stats
}

func TestDispatcher_DeliversSignedEnvelope(t *testing.T) {
	s := store.NewMemoryStore()
	recv := newReceiver(t, always(http.StatusOK))
	sub := addSubscription(t, s, "owner-1", recv.server.URL, true, constants.EventSessionCompleted)
	d := newTestDispatcher(t, s, clockz.RealClock)

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))

	require.Eventually(t, func() bool {
		return stats(t, s, sub.ID).SuccessfulDeliveries == 1
	}, 2*time.Second, 10*time.Millisecond)

	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.bodies, 1)

	body, header := recv.bodies[0], recv.headers[0]
	assert.True(t, Verify(body, header.Get(HeaderSignature), sub.Secret))
	assert.Equal(t, string(constants.EventSessionCompleted), header.Get(HeaderEvent))
	assert.NotEmpty(t, header.Get(HeaderTimestamp))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "checkout.session.completed", envelope["event"])
	assert.Equal(t, header.Get(HeaderDelivery), envelope["id"])
	assert.NotNil(t, envelope["timestamp"])
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "NGN", data["currency"])

	st := stats(t, s, sub.ID)
	assert.Equal(t, int64(1), st.TotalAttempts)
	assert.Equal(t, int64(0), st.FailedDeliveries)
}

func TestDispatcher_FailingEndpointRetriedThenAbandoned(t *testing.T) {
	s := store.NewMemoryStore()
	clock := clockz.NewFakeClock()
	recv := newReceiver(t, always(http.StatusInternalServerError))
	sub := addSubscription(t, s, "owner-1", recv.server.URL, true, constants.EventSessionCompleted)
	d := newTestDispatcher(t, s, clock)

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))

	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Second)
		return stats(t, s, sub.ID).FailedDeliveries == 1
	}, 3*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
	}
	time.Sleep(50 * time.Millisecond)

	st := stats(t, s, sub.ID)
	assert.Equal(t, int32(3), recv.hits.Load())
	assert.Equal(t, int64(3), st.TotalAttempts)
	assert.Equal(t, int64(1), st.FailedDeliveries)
	assert.Equal(t, int64(0), st.SuccessfulDeliveries)
	assert.NotNil(t, st.LastFailureAt)
}

func TestDispatcher_RetrySucceedsCountsOneSuccess(t *testing.T) {
	s := store.NewMemoryStore()
	clock := clockz.NewFakeClock()
	recv := newReceiver(t, func(hit int32) int {
		if hit == 1 {
			return http.StatusBadGateway
		}
		return http.StatusNoContent
	})
	sub := addSubscription(t, s, "owner-1", recv.server.URL, true, constants.EventSessionCompleted)
	d := newTestDispatcher(t, s, clock)

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))

	require.Eventually(t, func() bool {
		clock.Advance(2 * time.Second)
		return stats(t, s, sub.ID).SuccessfulDeliveries == 1
	}, 3*time.Second, 10*time.Millisecond)

	st := stats(t, s, sub.ID)
	assert.Equal(t, int64(2), st.TotalAttempts)
	assert.Equal(t, int64(0), st.FailedDeliveries)

	recv.mu.Lock()
	defer recv.mu.Unlock()
	assert.Equal(t, recv.headers[0].Get(HeaderDelivery), recv.headers[1].Get(HeaderDelivery))
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	s := store.NewMemoryStore()
	clock := clockz.NewFakeClock()
	failing := newReceiver(t, always(http.StatusInternalServerError))
	healthy := newReceiver(t, always(http.StatusOK))
	badSub := addSubscription(t, s, "owner-1", failing.server.URL, true, constants.EventSessionCompleted)
	goodSub := addSubscription(t, s, "owner-1", healthy.server.URL, true, constants.EventSessionCompleted)
	d := newTestDispatcher(t, s, clock)

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))

	// the failing endpoint sits in backoff because the clock never moves
	require.Eventually(t, func() bool {
		return stats(t, s, goodSub.ID).SuccessfulDeliveries == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return failing.hits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), stats(t, s, badSub.ID).FailedDeliveries)
}

func TestDispatcher_SkipsUnmatchedAndInactive(t *testing.T) {
	s := store.NewMemoryStore()
	recv := newReceiver(t, always(http.StatusOK))
	inactive := addSubscription(t, s, "owner-1", recv.server.URL, false, constants.EventSessionCompleted)
	otherEvent := addSubscription(t, s, "owner-1", recv.server.URL, true, constants.EventChargeRefunded)
	otherOwner := addSubscription(t, s, "owner-2", recv.server.URL, true, constants.EventSessionCompleted)
	d := newTestDispatcher(t, s, clockz.RealClock)

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))
	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-3")))

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), recv.hits.Load())
	for _, sub := range []*models.WebhookSubscription{inactive, otherEvent, otherOwner} {
		assert.Equal(t, int64(0), stats(t, s, sub.ID).TotalAttempts)
	}
}

func TestDispatcher_AttemptTimeoutCountsAsFailure(t *testing.T) {
	s := store.NewMemoryStore()
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)
	t.Cleanup(func() { close(release) })

	sub := addSubscription(t, s, "owner-1", slow.URL, true, constants.EventWebhookTest)
	d := NewDispatcher(s, Config{Workers: 1, Timeout: 50 * time.Millisecond})
	t.Cleanup(func() { d.Close(context.Background()) })

	ping, err := models.NewEvent(constants.EventWebhookTest, "owner-1", models.PingEventData{WebhookID: sub.ID}, time.Now())
	require.NoError(t, err)

	report := d.Deliver(context.Background(), sub, ping)

	assert.False(t, report.Delivered)
	assert.Equal(t, 1, report.Attempts)
	assert.NotEmpty(t, report.Error)

	st := stats(t, s, sub.ID)
	assert.Equal(t, int64(1), st.TotalAttempts)
	assert.Equal(t, int64(1), st.FailedDeliveries)
}

type blockingStore struct {
	*store.MemoryStore
	entered chan struct{}
	unblock chan struct{}
}

func (b *blockingStore) ListSubscriptions(ctx context.Context, owner string) ([]*models.WebhookSubscription, error) {
	b.entered <- struct{}{}
	<-b.unblock
	return b.MemoryStore.ListSubscriptions(ctx, owner)
}

func TestDispatcher_EnqueueBackpressureAndClose(t *testing.T) {
	s := &blockingStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}, 8),
		unblock:     make(chan struct{}),
	}
	d := NewDispatcher(s, Config{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))
	<-s.entered

	require.NoError(t, d.Enqueue(context.Background(), completedEvent("owner-1")))
	assert.ErrorIs(t, d.Enqueue(context.Background(), completedEvent("owner-1")), errs.ErrQueueFull)

	close(s.unblock)
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Enqueue(context.Background(), completedEvent("owner-1")), errs.ErrDispatcherClosed)
	assert.ErrorIs(t, d.Close(context.Background()), errs.ErrDispatcherClosed)
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := models.RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, BackoffMultiplier: 3}

	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 3*time.Second, policy.Delay(2))
	assert.Equal(t, 9*time.Second, policy.Delay(3))
}
