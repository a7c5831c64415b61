// Run regularly to deactivate profiles whose paid period has elapsed
package expiry

import (
	"context"
	"fmt"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/notify"
	"voxa/m/v2/app/workers"

	log "github.com/sirupsen/logrus"
)

const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

var (
	WORKER *workers.Worker
	Now    = time.Now
)

type SweepResult struct {
	Status     string   `json:"status"`
	Checked    int      `json:"checked"`
	Downgraded int      `json:"downgraded"`
	Errors     int      `json:"errors"`
	Logs       []string `json:"logs"`
}

func (r *SweepResult) logf(format string, args ...any) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

func Run() {
	ctx, cancel := context.WithTimeout(context.Background(), redis.SweepLockTTL)
	defer cancel()
	result, err := Sweep(ctx)
	if err != nil {
		log.WithError(err).Error("expiry sweep failed")
		notify.System(ctx, "expiry sweep failed: "+err.Error())
		return
	}
	if result.Downgraded > 0 || result.Errors > 0 {
		notify.System(ctx, fmt.Sprintf("expiry sweep: checked %d, downgraded %d, errors %d", result.Checked, result.Downgraded, result.Errors))
	}
}

// Sweep visits every profile once and downgrades those that are active with
// an expiry date in the past. Failures on one profile are counted and the
// sweep moves on. Running it again right after finds nothing to do.
func Sweep(ctx context.Context) (*SweepResult, error) {
	if !redis.AcquireLock(ctx, redis.SweepLockKey, redis.SweepLockTTL) {
		log.Info("expiry sweep already running, skipping")
		return &SweepResult{Status: StatusSkipped, Logs: []string{"another sweep holds the lock"}}, nil
	}
	defer redis.ReleaseLock(context.Background(), redis.SweepLockKey)

	timeNow := time.Now()
	now := Now().UTC()
	result := &SweepResult{Status: StatusCompleted, Logs: []string{}}
	result.logf("sweep started at %s", now.Format(time.RFC3339))

	err := mongo.MongoDBClient.ForEachUser(ctx, func(user *models.MongoUser, err error) {
		if err != nil {
			result.Errors++
			result.logf("failed to read profile: %v", err)
			log.WithError(err).Error("expiry sweep: failed to decode profile")
			return
		}
		result.Checked++
		if !user.IsActive || !user.IsExpired(now) {
			return
		}

		downgraded, err := mongo.MongoDBClient.DowngradeExpiredUser(ctx, user.ID, now)
		if err != nil {
			result.Errors++
			result.logf("failed to downgrade %s: %v", user.ID, err)
			log.WithError(err).WithField("user_id", user.ID).Error("expiry sweep: failed to downgrade")
			return
		}
		if downgraded {
			result.Downgraded++
			result.logf("downgraded %s (%s expired %s)", user.ID, user.CurrentActivePlan, user.CurrentPlanExpiryDate.Format(time.RFC3339))
			log.WithFields(log.Fields{"user_id": user.ID, "plan": user.CurrentActivePlan}).Info("expiry sweep: downgraded expired profile")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Sweep: %w", err)
	}

	result.logf("checked %d, downgraded %d, errors %d", result.Checked, result.Downgraded, result.Errors)
	config.CONFIG.DataDogClient.Gauge("sweep.checked", float64(result.Checked), nil, 1)
	config.CONFIG.DataDogClient.Count("sweep.downgraded", int64(result.Downgraded), nil, 1)
	config.CONFIG.DataDogClient.Count("sweep.errors", int64(result.Errors), nil, 1)
	config.CONFIG.DataDogClient.Timing("sweep.latency", time.Since(timeNow), nil, 1)
	return result, nil
}
