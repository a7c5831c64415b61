// Run regularly to check status of the system and persist it to the redis
package status

import (
	"context"
	"encoding/json"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/notify"
	"voxa/m/v2/app/status"
	"voxa/m/v2/app/workers"

	log "github.com/sirupsen/logrus"
)

const SystemStatusKey = "system-status"

var (
	WORKER     *workers.Worker
	ElevenLabs status.Pinger
)

func Run() {
	systemStatus, err := redis.WrapInCache(redis.RedisClient, SystemStatusKey, WORKER.Interval*10, FetchStatus)()
	if err != nil {
		log.Errorf("failed to fetch system status: %s", err)
		return
	}
	log.Debugf("system status: %s", systemStatus)
}

func FetchStatus() (string, error) {
	systemStatus := status.New(mongo.MongoDBClient, redis.RedisClient, ElevenLabs).GetSystemStatus()
	config.CONFIG.DataDogClient.Gauge("status_worker.mongo_db_available", boolToFloat64(systemStatus.MongoDB.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.redis_available", boolToFloat64(systemStatus.Redis.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.elevenlabs_available", boolToFloat64(systemStatus.ElevenLabs.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_users", float64(systemStatus.Usage.TotalUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_free_users", float64(systemStatus.Usage.TotalFreeUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_starter_users", float64(systemStatus.Usage.TotalStarterUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_pro_users", float64(systemStatus.Usage.TotalProUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_turbo_users", float64(systemStatus.Usage.TotalTurboUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_characters", float64(systemStatus.Usage.TotalCharacters), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_syntheses", float64(systemStatus.Usage.TotalSyntheses), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_voice_clones", float64(systemStatus.Usage.TotalVoiceClones), nil, 1)
	if !systemStatus.MongoDB.Available {
		reportUnavailableStatus("MongoDB")
	}
	if !systemStatus.Redis.Available {
		reportUnavailableStatus("Redis")
	}
	if !systemStatus.ElevenLabs.Available {
		reportUnavailableStatus("ElevenLabs")
	}
	statusBytes, _ := json.Marshal(systemStatus)
	return string(statusBytes), nil
}

func reportUnavailableStatus(systemName string) {
	message := "🔥 " + systemName + " is down 🔥"
	log.Error(message)
	notify.System(context.Background(), message)
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
