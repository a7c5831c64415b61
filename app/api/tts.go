package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/elevenlabs"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/util"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const (
	CharactersRemainingHeader = "X-Characters-Remaining"
	HistoryLimit              = 50
	historyPreviewLength      = 100
)

// TextToSpeech reserves the characters, synthesizes and refunds the
// reservation when the provider fails.
func TextToSpeech(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	var tts models.TTSRequest
	if !decodeBody(ctx, &tts) {
		return
	}
	if tts.Input == "" {
		lib.WriteError(ctx, http.StatusBadRequest, "text is required")
		return
	}
	characters := util.CountCharacters(tts.Input)
	if characters > elevenlabs.MaxInputCharacters {
		lib.WriteError(ctx, http.StatusBadRequest, elevenlabs.ErrInputTooLarge.Error())
		return
	}
	logger := log.WithFields(log.Fields{"user_id": user.ID, "characters": characters})

	remaining, err := mongo.MongoDBClient.ReserveCharacters(requestContext, user.ID, characters)
	if errors.Is(err, mongo.ErrInsufficientQuota) {
		logger.Infof("Insufficient characters, %d remaining", user.CharRemaining)
		config.CONFIG.DataDogClient.Incr("tts.insufficient_quota", []string{"plan:" + string(user.CurrentActivePlan)}, 1)
		lib.WriteError(ctx, http.StatusPaymentRequired, "insufficient characters remaining, please upgrade your plan")
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to reserve characters")
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to reserve characters")
		return
	}

	audio, err := Speech.CreateSpeech(requestContext, tts)
	if err != nil {
		logger.WithError(err).Error("Speech synthesis failed, refunding")
		if refundErr := mongo.MongoDBClient.RefundCharacters(context.Background(), user.ID, characters); refundErr != nil {
			logger.WithError(refundErr).Error("Failed to refund characters")
		}
		config.CONFIG.DataDogClient.Incr("tts.error", nil, 1)
		writeUpstreamError(ctx, err, "speech synthesis failed")
		return
	}

	voiceID, model := tts.VoiceID, tts.Model
	if voiceID == "" {
		voiceID = models.DefaultVoiceID
	}
	if model == "" {
		model = models.MultilingualV2
	}
	err = mongo.MongoDBClient.InsertHistory(requestContext, models.MongoHistory{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		VoiceID:     voiceID,
		ModelID:     string(model),
		Characters:  characters,
		TextPreview: util.Preview(tts.Input, historyPreviewLength),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to record history")
	}
	redis.TrackCharacters(requestContext, user.ID, characters)
	config.CONFIG.DataDogClient.Count("tts.characters", characters, []string{"model:" + string(model), "plan:" + string(user.CurrentActivePlan)}, 1)

	ctx.Response.Header.Set(CharactersRemainingHeader, strconv.FormatInt(remaining, 10))
	ctx.SetContentType("audio/mpeg")
	ctx.SetStatusCode(http.StatusOK)
	ctx.SetBody(audio)
}

func History(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	limit := int64(HistoryLimit)
	if raw := ctx.QueryArgs().GetUintOrZero("limit"); raw > 0 && raw < HistoryLimit {
		limit = int64(raw)
	}
	history, err := mongo.MongoDBClient.ListHistory(requestContext, user.ID, limit)
	if err != nil {
		log.WithError(err).Errorf("Failed to list history for user %s", user.ID)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to load history")
		return
	}
	if history == nil {
		history = []models.MongoHistory{}
	}
	lib.WriteJSON(ctx, http.StatusOK, map[string]any{"history": history})
}
