package mongo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tryvium-travels/memongo"
	"go.mongodb.org/mongo-driver/bson"
)

var MockMongoServer *memongo.Server

func TestMain(m *testing.M) {
	MockMongoServer, _ = memongo.Start("6.0.13")
	defer MockMongoServer.Stop()
	m.Run()
}

func setupClient(t *testing.T) *Client {
	uri := MockMongoServer.URIWithRandomDB()

	// parse db name from uri
	dbName := uri[strings.LastIndex(uri, "/")+1:]
	config.CONFIG = &config.Config{
		MongoDBName: dbName,
		Collections: config.DefaultCollections(),
	}
	return NewClient(uri)
}

func insertProfile(t *testing.T, c *Client, profile bson.M) {
	_, err := c.profiles().InsertOne(context.Background(), profile)
	require.NoError(t, err, "error inserting profile")
}

func TestGetUserByEmail(t *testing.T) {
	c := setupClient(t)
	insertProfile(t, c, bson.M{
		"_id":                      "user-1",
		"email":                    "a@b.com",
		"current_active_plan":      "free",
		"char_allowed":             1000,
		"char_remaining":           700,
		"current_plan_expiry_date": nil,
		"creem_customer_id":        nil,
		"is_active":                true,
	})

	user, err := c.GetUserByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, int64(700), user.CharRemaining)
	assert.Nil(t, user.CurrentPlanExpiryDate)
	assert.Equal(t, "", user.CreemCustomerID)

	_, err = c.GetUserByEmail(context.Background(), "missing@b.com")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestGetUser_FromContext(t *testing.T) {
	c := setupClient(t)
	insertProfile(t, c, bson.M{"_id": "292902807", "email": "x@y.z", "is_active": true})

	ctx := context.WithValue(context.Background(), models.UserContext{}, "292902807")
	user, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x@y.z", user.Email)
}

func TestCreateUser_KeepsExisting(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()

	created, err := c.CreateUser(ctx, models.MongoUser{
		ID:                "user-2",
		Email:             "new@b.com",
		CurrentActivePlan: models.FreePlanName,
		CharAllowed:       1000,
		CharRemaining:     1000,
		IsActive:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), created.CharRemaining)

	_, err = c.ReserveCharacters(ctx, "user-2", 100)
	require.NoError(t, err)

	again, err := c.CreateUser(ctx, models.MongoUser{ID: "user-2", CharAllowed: 1000, CharRemaining: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(900), again.CharRemaining, "second provisioning must not reset quota")
}

func TestApplyPlanGrant_ResetsQuota(t *testing.T) {
	c := setupClient(t)
	insertProfile(t, c, bson.M{"_id": "user-3", "email": "a@b.com", "char_allowed": 1000, "char_remaining": 12, "voice_clone_used": 1})

	start := time.Now().UTC().Truncate(time.Millisecond)
	err := c.ApplyPlanGrant(context.Background(), "user-3", models.PlanGrant{
		Plan:              models.StarterPlanName,
		ProductID:         "prod_1308g86Vz0IIqbZgpPa9o4",
		BillingCycle:      models.MonthlyBillingCycle,
		CharAllowed:       5000,
		VoiceCloneAllowed: 1,
		CustomerID:        "cust_1",
		SubscriptionID:    "sub_1",
		StartDate:         start,
		ExpiryDate:        start.AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	user, err := c.GetUserByID(context.Background(), "user-3")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), user.CharAllowed)
	assert.Equal(t, int64(5000), user.CharRemaining)
	assert.Equal(t, int64(1), user.VoiceCloneUsed)
	assert.True(t, user.IsActive)
	assert.Equal(t, "sub_1", user.CreemSubscriptionID)
	require.NotNil(t, user.CurrentPlanExpiryDate)
	assert.True(t, user.CurrentPlanExpiryDate.Equal(start.AddDate(0, 1, 0)))

	err = c.ApplyPlanGrant(context.Background(), "missing", models.PlanGrant{})
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestReserveCharacters_Concurrent(t *testing.T) {
	c := setupClient(t)
	insertProfile(t, c, bson.M{"_id": "user-4", "char_allowed": 1000, "char_remaining": 500, "is_active": true})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.ReserveCharacters(context.Background(), "user-4", 400)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientQuota))
		}
	}
	assert.Equal(t, 1, succeeded, "only one of two 400 character reservations fits into 500")

	user, err := c.GetUserByID(context.Background(), "user-4")
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.CharRemaining)
}

func TestRefundCharacters_CappedByAllowed(t *testing.T) {
	c := setupClient(t)
	insertProfile(t, c, bson.M{"_id": "user-5", "char_allowed": 1000, "char_remaining": 900})

	require.NoError(t, c.RefundCharacters(context.Background(), "user-5", 400))
	user, err := c.GetUserByID(context.Background(), "user-5")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), user.CharRemaining)
}

func TestDowngradeExpiredUser(t *testing.T) {
	c := setupClient(t)
	now := time.Now().UTC()
	insertProfile(t, c, bson.M{
		"_id":                      "expired",
		"current_active_plan":      "pro",
		"char_allowed":             100000,
		"char_remaining":           5,
		"current_plan_expiry_date": now.Add(-time.Hour),
		"creem_subscription_id":    "sub_9",
		"is_active":                true,
	})
	insertProfile(t, c, bson.M{
		"_id":                      "current",
		"current_active_plan":      "pro",
		"current_plan_expiry_date": now.Add(time.Hour),
		"is_active":                true,
	})

	downgraded, err := c.DowngradeExpiredUser(context.Background(), "expired", now)
	require.NoError(t, err)
	assert.True(t, downgraded)

	downgraded, err = c.DowngradeExpiredUser(context.Background(), "expired", now)
	require.NoError(t, err)
	assert.False(t, downgraded, "second downgrade is a no-op")

	downgraded, err = c.DowngradeExpiredUser(context.Background(), "current", now)
	require.NoError(t, err)
	assert.False(t, downgraded)

	var raw bson.M
	require.NoError(t, c.profiles().FindOne(context.Background(), bson.M{"_id": "expired"}).Decode(&raw))
	assert.Equal(t, false, raw["is_active"])
	assert.Nil(t, raw["char_allowed"])
	assert.Nil(t, raw["creem_subscription_id"])
	assert.Nil(t, raw["current_plan_expiry_date"])
}

func TestSubscriptionLifecycle(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	insertProfile(t, c, bson.M{
		"_id":                   "user-6",
		"creem_customer_id":     "cust_6",
		"creem_subscription_id": "sub_6",
		"active_product_id":     "prod_x",
		"billing_cycle":         "yearly",
		"plan_type":             "pro",
	})

	sub := models.MongoSubscription{UserID: "user-6", Provider: "creem", SubscriptionID: "sub_6", PlanName: models.ProPlanName}
	require.NoError(t, c.UpsertSubscription(ctx, sub))
	sub.SubscriptionID = "sub_7"
	require.NoError(t, c.UpsertSubscription(ctx, sub))

	stored, err := c.GetSubscriptionByUserID(ctx, "user-6")
	require.NoError(t, err)
	assert.Equal(t, "sub_7", stored.SubscriptionID)

	deleted, err := c.DeleteSubscriptionsByUserID(ctx, "user-6")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.NoError(t, c.ClearBillingLinkage(ctx, "user-6"))

	_, err = c.GetSubscriptionByUserID(ctx, "user-6")
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
	_, err = c.DeleteSubscriptionsByUserID(ctx, "user-6")
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))

	user, err := c.GetUserByID(ctx, "user-6")
	require.NoError(t, err)
	assert.Empty(t, user.CreemCustomerID)
	assert.Empty(t, user.CreemSubscriptionID)
	assert.Empty(t, user.ActiveProductID)
	assert.Empty(t, user.BillingCycle)
	assert.Empty(t, user.PlanType)
}

func TestReserveVoiceClone(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	insertProfile(t, c, bson.M{"_id": "cloner", "voice_clone_allowed": 1, "voice_clone_used": 0, "is_active": true})
	insertProfile(t, c, bson.M{"_id": "inactive", "voice_clone_allowed": 5, "voice_clone_used": 0, "is_active": false})

	require.NoError(t, c.ReserveVoiceClone(ctx, "cloner"))
	assert.True(t, errors.Is(c.ReserveVoiceClone(ctx, "cloner"), ErrVoiceCloneLimit))
	assert.True(t, errors.Is(c.ReserveVoiceClone(ctx, "inactive"), ErrInactiveAccount))

	require.NoError(t, c.ReleaseVoiceClone(ctx, "cloner"))
	require.NoError(t, c.ReleaseVoiceClone(ctx, "cloner"))
	user, err := c.GetUserByID(ctx, "cloner")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.VoiceCloneUsed)
}

func TestDeleteUserData_Cascades(t *testing.T) {
	c := setupClient(t)
	ctx := context.Background()
	insertProfile(t, c, bson.M{"_id": "leaving"})
	require.NoError(t, c.InsertHistory(ctx, models.MongoHistory{ID: "h1", UserID: "leaving", CreatedAt: time.Now()}))
	require.NoError(t, c.InsertVoiceModel(ctx, models.MongoVoiceModel{ID: "v1", UserID: "leaving", VoiceID: "el_1"}))
	require.NoError(t, c.UpsertSubscription(ctx, models.MongoSubscription{UserID: "leaving"}))

	require.NoError(t, c.DeleteUserData(ctx, "leaving"))

	history, err := c.ListHistory(ctx, "leaving", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	voices, err := c.ListVoiceModels(ctx, "leaving")
	require.NoError(t, err)
	assert.Empty(t, voices)
	_, err = c.GetUserByID(ctx, "leaving")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
