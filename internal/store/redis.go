package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix       = "session:"
	ownerSessionsPrefix = "owner_sessions:"
	credentialPrefix    = "credential:"
	tokenPrefix         = "credential_token:"
	webhookPrefix       = "webhook:"
	webhookStatsPrefix  = "webhook_stats:"
	ownerWebhooksPrefix = "owner_webhooks:"

	pendingSessionsKey = "pending_sessions"

	statAttempts    = "attempts"
	statSuccesses   = "successes"
	statFailures    = "failures"
	statLastSuccess = "last_success"
	statLastFailure = "last_failure"

	maxTxRetries = 10
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	return &RedisStore{
		client: client,
	}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// watch runs txf under optimistic locking, retrying when another client
// modified a watched key before EXEC.
func (r *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to commit after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

func (r *RedisStore) CreateSession(ctx context.Context, session *models.CheckoutSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionPrefix+session.ID, data, 0)
		pipe.SAdd(ctx, ownerSessionsPrefix+session.OwnerID, session.ID)
		if session.Status == constants.StatusPending {
			pipe.ZAdd(ctx, pendingSessionsKey, redis.Z{
				Score:  float64(session.ExpiresAt.Unix()),
				Member: session.ID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *RedisStore) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	data, err := r.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisStore) ListSessions(ctx context.Context, ownerID string) ([]*models.CheckoutSession, error) {
	ids, err := r.client.SMembers(ctx, ownerSessionsPrefix+ownerID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*models.CheckoutSession, 0, len(ids))
	for _, id := range ids {
		session, err := r.GetSession(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *RedisStore) UpdateSession(ctx context.Context, id string, fn func(*models.CheckoutSession) error) (*models.CheckoutSession, error) {
	key := sessionPrefix + id
	var updated *models.CheckoutSession

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errs.NotFound("session", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var session models.CheckoutSession
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if err := fn(&session); err != nil {
			return err
		}

		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if session.Status != constants.StatusPending {
				pipe.ZRem(ctx, pendingSessionsKey, id)
			}
			return nil
		})
		if err == nil {
			updated = &session
		}
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisStore) DuePendingSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, pendingSessionsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query pending sessions: %w", err)
	}
	return ids, nil
}

func (r *RedisStore) CreateCredential(ctx context.Context, cred *models.Credential) (*models.Credential, bool, error) {
	key := credentialPrefix + cred.OwnerID
	var existing *models.Credential

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == nil {
			var current models.Credential
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("failed to unmarshal credential: %w", err)
			}
			existing = &current
			return nil
		}
		if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get credential: %w", err)
		}

		payload, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Set(ctx, tokenPrefix+cred.PublicToken, cred.OwnerID, 0)
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return cred, true, nil
}

func (r *RedisStore) GetCredential(ctx context.Context, ownerID string) (*models.Credential, error) {
	data, err := r.client.Get(ctx, credentialPrefix+ownerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.NotFound("credential", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

func (r *RedisStore) OwnerByPublicToken(ctx context.Context, publicToken string) (string, error) {
	owner, err := r.client.Get(ctx, tokenPrefix+publicToken).Result()
	if errors.Is(err, redis.Nil) {
		return "", errs.NotFound("credential token", publicToken)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve public token: %w", err)
	}
	return owner, nil
}

func (r *RedisStore) UpdateCredential(ctx context.Context, ownerID string, fn func(*models.Credential) error) (*models.Credential, error) {
	key := credentialPrefix + ownerID
	var updated *models.Credential

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errs.NotFound("credential", ownerID)
		}
		if err != nil {
			return fmt.Errorf("failed to get credential: %w", err)
		}

		var cred models.Credential
		if err := json.Unmarshal(data, &cred); err != nil {
			return fmt.Errorf("failed to unmarshal credential: %w", err)
		}
		oldToken := cred.PublicToken

		if err := fn(&cred); err != nil {
			return err
		}

		payload, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if cred.PublicToken != oldToken {
				pipe.Del(ctx, tokenPrefix+oldToken)
				pipe.Set(ctx, tokenPrefix+cred.PublicToken, ownerID, 0)
			}
			return nil
		})
		if err == nil {
			updated = &cred
		}
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisStore) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, webhookPrefix+sub.ID, data, 0)
		pipe.SAdd(ctx, ownerWebhooksPrefix+sub.OwnerID, sub.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

func (r *RedisStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	data, err := r.client.Get(ctx, webhookPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.NotFound("webhook", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}

	var sub models.WebhookSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook: %w", err)
	}

	stats, err := r.stats(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.Stats = stats
	return &sub, nil
}

func (r *RedisStore) ListSubscriptions(ctx context.Context, ownerID string) ([]*models.WebhookSubscription, error) {
	ids, err := r.client.SMembers(ctx, ownerWebhooksPrefix+ownerID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}

	subs := make([]*models.WebhookSubscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.GetSubscription(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *RedisStore) UpdateSubscription(ctx context.Context, id string, fn func(*models.WebhookSubscription) error) (*models.WebhookSubscription, error) {
	key := webhookPrefix + id
	var updated *models.WebhookSubscription

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errs.NotFound("webhook", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get webhook: %w", err)
		}

		var sub models.WebhookSubscription
		if err := json.Unmarshal(data, &sub); err != nil {
			return fmt.Errorf("failed to unmarshal webhook: %w", err)
		}

		if err := fn(&sub); err != nil {
			return err
		}
		// counters live in the stats hash
		sub.Stats = models.DeliveryStats{}

		payload, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("failed to marshal webhook: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			updated = &sub
		}
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, err
	}

	stats, err := r.stats(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.Stats = stats
	return updated, nil
}

func (r *RedisStore) IncrementAttempts(ctx context.Context, id string) error {
	if err := r.client.HIncrBy(ctx, webhookStatsPrefix+id, statAttempts, 1).Err(); err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}
	return nil
}

func (r *RedisStore) RecordOutcome(ctx context.Context, id string, delivered bool, at time.Time) error {
	key := webhookStatsPrefix + id
	counter, stamp := statFailures, statLastFailure
	if delivered {
		counter, stamp = statSuccesses, statLastSuccess
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, counter, 1)
		pipe.HSet(ctx, key, stamp, at.UTC().Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record delivery outcome: %w", err)
	}
	return nil
}

func (r *RedisStore) stats(ctx context.Context, id string) (models.DeliveryStats, error) {
	fields, err := r.client.HGetAll(ctx, webhookStatsPrefix+id).Result()
	if err != nil {
		return models.DeliveryStats{}, fmt.Errorf("failed to get webhook stats: %w", err)
	}

	var stats models.DeliveryStats
	stats.TotalAttempts = parseCounter(fields[statAttempts])
	stats.SuccessfulDeliveries = parseCounter(fields[statSuccesses])
	stats.FailedDeliveries = parseCounter(fields[statFailures])
	stats.LastSuccessAt = parseStamp(fields[statLastSuccess])
	stats.LastFailureAt = parseStamp(fields[statLastFailure])
	return stats, nil
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseStamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
