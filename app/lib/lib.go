package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/models"
)

var TIMEOUT = 2 * time.Minute

// Session is what the auth layer knows about the caller.
type Session struct {
	UserID  string
	Email   string
	Name    string
	Picture string
}

// SetupUserAndContext builds the request context for an authenticated caller
// and provisions a free-tier profile on the first request.
func SetupUserAndContext(parent context.Context, session Session) (user *models.MongoUser, currentContext context.Context, cancelContext context.CancelFunc, err error) {
	if session.UserID == "" {
		return nil, nil, nil, errors.New("SetupUserAndContext: empty user id")
	}
	currentContext = context.WithValue(parent, models.UserContext{}, session.UserID)
	currentContext = context.WithValue(currentContext, models.EmailContext{}, session.Email)
	currentContext, cancelContext = context.WithTimeout(currentContext, TIMEOUT)

	user, err = mongo.MongoDBClient.GetUser(currentContext)
	if errors.Is(err, mongo.ErrUserNotFound) {
		log.Infof("No profile for user %s, provisioning free tier", session.UserID)
		config.CONFIG.DataDogClient.Incr("new_user", nil, 1)
		user, err = mongo.MongoDBClient.CreateUser(currentContext, NewFreeUser(session))
	}
	if err != nil {
		cancelContext()
		return nil, nil, nil, fmt.Errorf("SetupUserAndContext: %w", err)
	}
	currentContext = context.WithValue(currentContext, models.AdminContext{}, user.IsAdmin)
	return user, currentContext, cancelContext, nil
}

// NewFreeUser is the profile a user gets on first login.
func NewFreeUser(session Session) models.MongoUser {
	return models.MongoUser{
		ID:                session.UserID,
		Email:             session.Email,
		Name:              session.Name,
		Picture:           session.Picture,
		CurrentActivePlan: models.FreePlanName,
		CharAllowed:       models.FreePlan.Characters,
		CharRemaining:     models.FreePlan.Characters,
		VoiceCloneAllowed: models.FreePlan.VoiceClones,
		IsActive:          true,
	}
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(models.AdminContext{}).(bool)
	return admin
}

func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(models.UserContext{}).(string)
	return userID
}
