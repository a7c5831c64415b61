package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/converters"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const maxSampleBytes = 10 << 20

var (
	TranscodeSample = converters.TranscodeSample
	FFMPEGAvailable = converters.Available
)

// CreateVoice clones a voice from the uploaded samples. The clone credit is
// taken before the provider call and given back if it fails.
func CreateVoice(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	form, err := ctx.MultipartForm()
	if err != nil {
		lib.WriteError(ctx, http.StatusBadRequest, "multipart form expected")
		return
	}
	name := strings.TrimSpace(firstValue(form.Value["name"]))
	if name == "" {
		lib.WriteError(ctx, http.StatusBadRequest, "name is required")
		return
	}
	request := models.CloneVoiceRequest{Name: name, Description: firstValue(form.Value["description"])}
	for _, header := range form.File["files"] {
		if header.Size > maxSampleBytes {
			lib.WriteError(ctx, http.StatusBadRequest, "sample "+header.Filename+" is too large")
			return
		}
		file, err := header.Open()
		if err != nil {
			lib.WriteError(ctx, http.StatusBadRequest, "failed to read sample "+header.Filename)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			lib.WriteError(ctx, http.StatusBadRequest, "failed to read sample "+header.Filename)
			return
		}
		sample := models.VoiceSample{FileName: header.Filename, Data: data}
		if converters.NeedsTranscoding(sample.FileName) && FFMPEGAvailable() {
			transcoded, duration, err := TranscodeSample(requestContext, sample)
			if err != nil {
				log.WithError(err).Warnf("Failed to transcode sample %s, sending as is", sample.FileName)
			} else {
				config.CONFIG.DataDogClient.Distribution("voice.sample_seconds", duration.Seconds(), nil, 1)
				sample = transcoded
			}
		}
		request.Samples = append(request.Samples, sample)
	}
	if len(request.Samples) == 0 {
		lib.WriteError(ctx, http.StatusBadRequest, "at least one audio file is required")
		return
	}

	err = mongo.MongoDBClient.ReserveVoiceClone(requestContext, user.ID)
	switch {
	case errors.Is(err, mongo.ErrVoiceCloneLimit):
		lib.WriteError(ctx, http.StatusForbidden, "voice clone limit reached, please upgrade your plan")
		return
	case errors.Is(err, mongo.ErrInactiveAccount):
		lib.WriteError(ctx, http.StatusForbidden, "an active subscription is required to clone voices")
		return
	case err != nil:
		log.WithError(err).Errorf("Failed to reserve voice clone for user %s", user.ID)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to reserve voice clone")
		return
	}

	voice, err := Speech.CloneVoice(requestContext, request)
	if err != nil {
		log.WithError(err).Errorf("Voice cloning failed for user %s, releasing credit", user.ID)
		if releaseErr := mongo.MongoDBClient.ReleaseVoiceClone(context.Background(), user.ID); releaseErr != nil {
			log.WithError(releaseErr).Errorf("Failed to release voice clone for user %s", user.ID)
		}
		writeUpstreamError(ctx, err, "voice cloning failed")
		return
	}

	model := models.MongoVoiceModel{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		VoiceID:   voice.VoiceID,
		Name:      voice.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := mongo.MongoDBClient.InsertVoiceModel(requestContext, model); err != nil {
		log.WithError(err).Errorf("Failed to store voice %s for user %s", voice.VoiceID, user.ID)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to store voice")
		return
	}
	redis.TrackVoiceClone(requestContext)
	config.CONFIG.DataDogClient.Incr("voice.cloned", []string{"plan:" + string(user.CurrentActivePlan)}, 1)
	lib.WriteJSON(ctx, http.StatusOK, model)
}

func ListVoices(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	voices, err := mongo.MongoDBClient.ListVoiceModels(requestContext, user.ID)
	if err != nil {
		log.WithError(err).Errorf("Failed to list voices for user %s", user.ID)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to load voices")
		return
	}
	if voices == nil {
		voices = []models.MongoVoiceModel{}
	}
	lib.WriteJSON(ctx, http.StatusOK, map[string]any{"voices": voices})
}

// DeleteVoice removes the provider voice and then the stored model. The
// clone credit is not returned.
func DeleteVoice(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	id, _ := ctx.UserValue("id").(string)
	voices, err := mongo.MongoDBClient.ListVoiceModels(requestContext, user.ID)
	if err != nil {
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to load voices")
		return
	}
	var voice *models.MongoVoiceModel
	for i := range voices {
		if voices[i].ID == id {
			voice = &voices[i]
		}
	}
	if voice == nil {
		lib.WriteError(ctx, http.StatusNotFound, "voice not found")
		return
	}

	if err := Speech.DeleteVoice(requestContext, voice.VoiceID); err != nil {
		log.WithError(err).Errorf("Failed to delete provider voice %s", voice.VoiceID)
		writeUpstreamError(ctx, err, "failed to delete voice")
		return
	}
	if _, err := mongo.MongoDBClient.DeleteVoiceModel(requestContext, user.ID, id); err != nil && !errors.Is(err, mongo.ErrVoiceModelNotFound) {
		log.WithError(err).Errorf("Failed to delete voice model %s", id)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to delete voice")
		return
	}
	lib.WriteMessage(ctx, http.StatusOK, "voice deleted")
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
