package api

import (
	"context"
	"net/http"
	"voxa/m/v2/app/auth"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

func Profile(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	lib.WriteJSON(ctx, http.StatusOK, user)
}

// DeleteAccount removes everything stored for the caller. Provider voices are
// deleted best effort; the Firebase user goes last.
func DeleteAccount(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	logger := log.WithField("user_id", user.ID)
	voices, err := mongo.MongoDBClient.ListVoiceModels(requestContext, user.ID)
	if err != nil {
		logger.WithError(err).Warn("Failed to list voices before account deletion")
	}
	for _, voice := range voices {
		if err := Speech.DeleteVoice(requestContext, voice.VoiceID); err != nil {
			logger.WithError(err).Warnf("Failed to delete provider voice %s", voice.VoiceID)
		}
	}

	if err := mongo.MongoDBClient.DeleteUserData(requestContext, user.ID); err != nil {
		logger.WithError(err).Error("Failed to delete user data")
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to delete account")
		return
	}
	if err := auth.DeleteUser(requestContext, user.ID); err != nil {
		logger.WithError(err).Error("Failed to delete auth user")
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to delete login")
		return
	}
	config.CONFIG.DataDogClient.Incr("account.deleted", nil, 1)
	logger.Info("Account deleted")
	lib.WriteMessage(ctx, http.StatusOK, "account deleted")
}
