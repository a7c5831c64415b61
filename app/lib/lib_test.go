package lib

import (
	"context"
	"testing"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/models"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	config.CONFIG = &config.Config{
		DataDogClient: &statsd.NoOpClient{},
	}
}

func TestSetupUserAndContext_ProvisionsFreeTier(t *testing.T) {
	store := mongo.NewMockMongoDBClient()
	mongo.MongoDBClient = store

	user, ctx, cancel, err := SetupUserAndContext(context.Background(), Session{UserID: "new-user", Email: "new@b.com", Name: "New"})
	require.NoError(t, err)
	defer cancel()

	assert.Equal(t, "new-user", UserID(ctx))
	assert.False(t, IsAdmin(ctx))
	assert.Equal(t, models.FreePlanName, user.CurrentActivePlan)
	assert.Equal(t, models.FreePlan.Characters, user.CharAllowed)
	assert.Equal(t, user.CharAllowed, user.CharRemaining)
	assert.True(t, user.IsActive)
	assert.NotNil(t, store.User("new-user"))
}

func TestSetupUserAndContext_ExistingAdmin(t *testing.T) {
	mongo.MongoDBClient = mongo.NewMockMongoDBClient(models.MongoUser{
		ID:            "admin",
		IsAdmin:       true,
		CharAllowed:   5000,
		CharRemaining: 42,
	})

	user, ctx, cancel, err := SetupUserAndContext(context.Background(), Session{UserID: "admin"})
	require.NoError(t, err)
	defer cancel()

	assert.True(t, IsAdmin(ctx))
	assert.Equal(t, int64(42), user.CharRemaining, "existing profile is not reset")
}

func TestSetupUserAndContext_EmptyUser(t *testing.T) {
	_, _, _, err := SetupUserAndContext(context.Background(), Session{})
	assert.Error(t, err)
}
