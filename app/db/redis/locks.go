package redis

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	SweepLockKey     = "sweep:lock"
	SweepLockTTL     = 10 * time.Minute
	WebhookEventTTL  = 24 * time.Hour
	webhookEventPref = "webhook:event:"
)

// AcquireLock returns true when the key was free. Redis errors count as
// acquired: the lock only avoids duplicate work, it does not guard correctness.
func AcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := RedisClient.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		log.WithError(err).Warnf("AcquireLock: failed to set %s, proceeding without lock", key)
		return true
	}
	return ok
}

func ReleaseLock(ctx context.Context, key string) {
	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		log.WithError(err).Warnf("ReleaseLock: failed to delete %s", key)
	}
}

// MarkEventSeen records a webhook event id. It returns false if the event was
// already recorded within WebhookEventTTL.
func MarkEventSeen(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return true
	}
	return AcquireLock(ctx, webhookEventPref+eventID, WebhookEventTTL)
}

// ForgetEvent lets a failed event be processed again on redelivery.
func ForgetEvent(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	ReleaseLock(ctx, webhookEventPref+eventID)
}
