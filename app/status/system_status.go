package status

import (
	"context"
	"time"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/models"

	"github.com/sirupsen/logrus"
)

type SystemStatus struct {
	MongoDB    *Status     `json:"mongodb"`
	Redis      *Status     `json:"redis"`
	ElevenLabs *Status     `json:"elevenlabs"`
	Time       time.Time   `json:"time"`
	Usage      SystemUsage `json:"usage"`
}

type SystemUsage struct {
	TotalUsers        int64 `json:"total_users"`
	TotalFreeUsers    int64 `json:"total_free_users"`
	TotalStarterUsers int64 `json:"total_starter_users"`
	TotalProUsers     int64 `json:"total_pro_users"`
	TotalTurboUsers   int64 `json:"total_turbo_users"`
	TotalCharacters   int64 `json:"total_characters"`
	TotalSyntheses    int64 `json:"total_syntheses"`
	TotalVoiceClones  int64 `json:"total_voice_clones"`
}

type Status struct {
	Available bool `json:"available"`
}

// Pinger is anything that can tell whether an upstream answers.
type Pinger interface {
	IsAvailable(ctx context.Context) bool
}

// SystemStatusHandler is a handler for system status
type SystemStatusHandler struct {
	MongoDB    mongo.MongoClient
	Redis      redis.Client
	ElevenLabs Pinger
}

func New(mongoDB mongo.MongoClient, redis redis.Client, elevenLabs Pinger) *SystemStatusHandler {
	return &SystemStatusHandler{
		MongoDB:    mongoDB,
		Redis:      redis,
		ElevenLabs: elevenLabs,
	}
}

// GetSystemStatus gets a status of the system
func (h *SystemStatusHandler) GetSystemStatus() SystemStatus {
	mongoAvailable := false
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPing()
	err := h.MongoDB.Ping(ctxPing, nil)
	if err != nil {
		logrus.WithError(err).Warn("GetSystemStatus: failed to ping MongoDB")
	} else {
		mongoAvailable = true
	}
	status := SystemStatus{
		MongoDB: &Status{
			Available: mongoAvailable,
		},
		Redis: &Status{
			Available: h.Redis != nil && h.Redis.Ping(context.Background()).Err() == nil,
		},
		ElevenLabs: &Status{
			Available: h.ElevenLabs != nil && h.ElevenLabs.IsAvailable(ctxPing),
		},
		Usage: SystemUsage{},
		Time:  time.Now(),
	}
	if status.Redis.Available {
		status.Usage.TotalCharacters = h.counter(redis.SystemTotalCharactersKey)
		status.Usage.TotalSyntheses = h.counter(redis.SystemTotalSynthesesKey)
		status.Usage.TotalVoiceClones = h.counter(redis.SystemTotalVoiceClonesKey)
	}
	if status.MongoDB.Available {
		status.Usage.TotalUsers, _ = h.MongoDB.GetUsersCount(context.Background())
		status.Usage.TotalFreeUsers, _ = h.MongoDB.GetUsersCountForPlan(context.Background(), models.FreePlanName)
		status.Usage.TotalStarterUsers, _ = h.MongoDB.GetUsersCountForPlan(context.Background(), models.StarterPlanName)
		status.Usage.TotalProUsers, _ = h.MongoDB.GetUsersCountForPlan(context.Background(), models.ProPlanName)
		status.Usage.TotalTurboUsers, _ = h.MongoDB.GetUsersCountForPlan(context.Background(), models.TurboPlanName)
	}
	return status
}

func (h *SystemStatusHandler) counter(key string) int64 {
	value, err := h.Redis.Get(context.Background(), key).Int64()
	if err != nil {
		return 0
	}
	return value
}
