package redis

import (
	"context"

	log "github.com/sirupsen/logrus"
)

const (
	SystemTotalCharactersKey  = "system_totals:characters"
	SystemTotalSynthesesKey   = "system_totals:syntheses"
	SystemTotalVoiceClonesKey = "system_totals:voice_clones"
)

func UserTotalCharactersKey(user string) string {
	return user + ":total_characters"
}

// TrackCharacters bumps per-user and system character counters.
func TrackCharacters(ctx context.Context, user string, characters int64) {
	for key, value := range map[string]int64{
		UserTotalCharactersKey(user): characters,
		SystemTotalCharactersKey:     characters,
		SystemTotalSynthesesKey:      1,
	} {
		if err := RedisClient.IncrBy(ctx, key, value).Err(); err != nil {
			log.WithError(err).Warnf("TrackCharacters: failed to increment %s", key)
		}
	}
}

func TrackVoiceClone(ctx context.Context) {
	if err := RedisClient.IncrBy(ctx, SystemTotalVoiceClonesKey, 1).Err(); err != nil {
		log.WithError(err).Warnf("TrackVoiceClone: failed to increment %s", SystemTotalVoiceClonesKey)
	}
}
