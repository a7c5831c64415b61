package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/models"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
	"github.com/valyala/fasthttp"
)

var fixedNow = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T, users ...models.MongoUser) (*mongo.MockMongoDBClient, *redis.MockRedisClient) {
	config.CONFIG = &config.Config{
		AppUrl:        "https://voxa.test",
		DataDogClient: &statsd.NoOpClient{},
	}
	store := mongo.NewMockMongoDBClient(users...)
	cache := redis.NewMockRedisClient()
	mongo.MongoDBClient = store
	redis.RedisClient = cache
	Catalog = models.Catalog(models.DefaultProducts)
	Now = func() time.Time { return fixedNow }
	t.Cleanup(func() { Now = time.Now })
	return store, cache
}

func paidPayload(id, email, product, cycle string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"eventType": "subscription.paid",
		"object": {
			"id": "sub_123",
			"customer": {"id": "cust_123", "email": %q},
			"product": {"id": %q},
			"metadata": {"plan_name": "starter", "billing_cycle": %q}
		}
	}`, id, email, product, cycle))
}

func webhookRequest(body []byte, headers map[string]string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetBody(body)
	for key, value := range headers {
		ctx.Request.Header.Set(key, value)
	}
	return ctx
}

func responseJSON(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body
}

func TestCreemWebhook_SubscriptionPaid(t *testing.T) {
	store, _ := setup(t, models.MongoUser{
		ID:                "user-1",
		Email:             "a@b.com",
		CurrentActivePlan: models.FreePlanName,
		CharAllowed:       1000,
		CharRemaining:     37,
		VoiceCloneUsed:    1,
	})

	ctx := webhookRequest(paidPayload("evt_1", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil)
	CreemWebhook(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, responseJSON(t, ctx), "message")

	user := store.User("user-1")
	assert.Equal(t, models.StarterPlanName, user.CurrentActivePlan)
	assert.Equal(t, int64(5000), user.CharAllowed)
	assert.Equal(t, int64(5000), user.CharRemaining, "previous remainder is forfeited")
	assert.Equal(t, int64(1), user.VoiceCloneUsed)
	assert.True(t, user.IsActive)
	assert.Equal(t, "cust_123", user.CreemCustomerID)
	assert.Equal(t, "sub_123", user.CreemSubscriptionID)
	require.NotNil(t, user.CurrentPlanExpiryDate)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), *user.CurrentPlanExpiryDate, "one calendar month, normalized")

	subscription, err := store.GetSubscriptionByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_123", subscription.SubscriptionID)
	assert.Equal(t, models.MonthlyBillingCycle, subscription.BillingCycle)
}

func TestCreemWebhook_YearlyUnknownProduct(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com"})

	ctx := webhookRequest(paidPayload("evt_2", "a@b.com", "prod_unknown", "yearly"), nil)
	CreemWebhook(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	user := store.User("user-1")
	assert.Equal(t, models.FallbackCharacters, user.CharAllowed)
	assert.Equal(t, models.YearlyBillingCycle, user.BillingCycle)
	assert.Equal(t, fixedNow.AddDate(1, 0, 0), *user.CurrentPlanExpiryDate)
}

func TestCreemWebhook_NoProfile(t *testing.T) {
	store, cache := setup(t)

	ctx := webhookRequest(paidPayload("evt_3", "ghost@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil)
	CreemWebhook(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Empty(t, store.Subscriptions)
	assert.True(t, cache.Has("webhook:event:evt_3"))
}

func TestCreemWebhook_IgnoredEvent(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com", CharRemaining: 10})

	ctx := webhookRequest([]byte(`{"id":"evt_4","type":"checkout.completed","object":{}}`), nil)
	CreemWebhook(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "event checkout.completed ignored", responseJSON(t, ctx)["message"])
	assert.Equal(t, int64(10), store.User("user-1").CharRemaining)
}

func TestCreemWebhook_Malformed(t *testing.T) {
	setup(t)
	ctx := webhookRequest([]byte(`{not json`), nil)
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Contains(t, responseJSON(t, ctx), "error")
}

func TestCreemWebhook_StorageFailureAllowsRedelivery(t *testing.T) {
	store, cache := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com"})
	store.FailUpdates["user-1"] = errors.New("write conflict")

	ctx := webhookRequest(paidPayload("evt_5", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil)
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusInternalServerError, ctx.Response.StatusCode())
	assert.False(t, cache.Has("webhook:event:evt_5"))

	delete(store.FailUpdates, "user-1")
	ctx = webhookRequest(paidPayload("evt_5", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil)
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, int64(5000), store.User("user-1").CharAllowed)
}

func TestCreemWebhook_DuplicateEvent(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com"})

	CreemWebhook(webhookRequest(paidPayload("evt_6", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil))
	_, err := store.ReserveCharacters(context.Background(), "user-1", 100)
	require.NoError(t, err)

	ctx := webhookRequest(paidPayload("evt_6", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", ""), nil)
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, int64(4900), store.User("user-1").CharRemaining, "redelivery does not reset quota again")
}

func TestCreemWebhook_Signature(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com"})
	config.CONFIG.CreemWebhookSecret = "whsec"
	body := paidPayload("evt_7", "a@b.com", "prod_1308g86Vz0IIqbZgpPa9o4", "")

	ctx := webhookRequest(body, map[string]string{CreemSignatureHeader: "deadbeef"})
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Equal(t, int64(0), store.User("user-1").CharAllowed)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	ctx = webhookRequest(body, map[string]string{CreemSignatureHeader: hex.EncodeToString(mac.Sum(nil))})
	CreemWebhook(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, int64(5000), store.User("user-1").CharAllowed)
}

func TestStripeWebhook_InvoicePaid(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", Email: "a@b.com"})
	config.CONFIG.StripeEndpointSecret = "whsec_stripe"

	payload := []byte(`{
		"id": "evt_stripe_1",
		"object": "event",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_1",
			"object": "invoice",
			"customer": "cus_1",
			"customer_email": "a@b.com",
			"subscription": "sub_stripe_1",
			"lines": {"object": "list", "data": [{
				"id": "il_1",
				"price": {"id": "price_1", "product": "prod_1308g86Vz0IIqbZgpPa9o4", "recurring": {"interval": "year"}}
			}]}
		}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_stripe",
		Timestamp: time.Now(),
	})

	ctx := webhookRequest(payload, map[string]string{"Stripe-Signature": signed.Header})
	StripeWebhook(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	user := store.User("user-1")
	assert.Equal(t, int64(5000), user.CharAllowed)
	assert.Equal(t, models.YearlyBillingCycle, user.BillingCycle)
	assert.Equal(t, "sub_stripe_1", user.CreemSubscriptionID)
	subscription, err := store.GetSubscriptionByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, config.BillingProviderStripe, subscription.Provider)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	setup(t)
	config.CONFIG.StripeEndpointSecret = "whsec_stripe"
	ctx := webhookRequest([]byte(`{"id":"evt"}`), map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	StripeWebhook(ctx)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
}

type fakeProvider struct {
	canceled []string
	checkout CheckoutRequest
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateCheckout(ctx context.Context, request CheckoutRequest) (*models.Checkout, error) {
	f.checkout = request
	if f.err != nil {
		return nil, f.err
	}
	return &models.Checkout{ID: "ch_1", CheckoutURL: "https://pay.test/ch_1"}, nil
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.canceled = append(f.canceled, subscriptionID)
	return &models.ProviderSubscription{ID: subscriptionID, CancelAtPeriodEnd: true}, nil
}

func callerContext(userID string, admin bool) context.Context {
	ctx := context.WithValue(context.Background(), models.UserContext{}, userID)
	return context.WithValue(ctx, models.AdminContext{}, admin)
}

func TestCancelSubscription(t *testing.T) {
	store, _ := setup(t,
		models.MongoUser{ID: "owner", CreemSubscriptionID: "sub_1", CurrentActivePlan: models.ProPlanName},
		models.MongoUser{ID: "other"},
	)
	provider := &fakeProvider{}
	BillingProvider = provider

	subscription, err := CancelSubscription(callerContext("owner", false), "sub_1")
	require.NoError(t, err)
	assert.True(t, subscription.CancelAtPeriodEnd)
	assert.Equal(t, []string{"sub_1"}, provider.canceled)
	assert.Equal(t, models.ProPlanName, store.User("owner").CurrentActivePlan, "local state untouched")

	_, err = CancelSubscription(callerContext("other", false), "sub_1")
	assert.ErrorIs(t, err, ErrNotSubscriptionOwner)

	_, err = CancelSubscription(callerContext("admin", true), "sub_1")
	assert.NoError(t, err)
}

func TestCancelSubscription_ProviderError(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "owner", CreemSubscriptionID: "sub_1"})
	BillingProvider = &fakeProvider{err: &ProviderError{Provider: "fake", StatusCode: http.StatusNotFound, Message: "subscription not found"}}

	_, err := CancelSubscription(callerContext("owner", false), "sub_1")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusNotFound, providerErr.StatusCode)
	assert.Equal(t, "sub_1", store.User("owner").CreemSubscriptionID)
}

func TestDeleteSubscription(t *testing.T) {
	store, _ := setup(t, models.MongoUser{ID: "user-1", CreemCustomerID: "cust_1", CreemSubscriptionID: "sub_1", ActiveProductID: "prod"})
	require.NoError(t, store.UpsertSubscription(context.Background(), models.MongoSubscription{UserID: "user-1", SubscriptionID: "sub_1"}))

	deleted, err := DeleteSubscription(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	user := store.User("user-1")
	assert.Empty(t, user.CreemCustomerID)
	assert.Empty(t, user.CreemSubscriptionID)
	assert.Empty(t, user.ActiveProductID)

	_, err = DeleteSubscription(context.Background(), "user-1")
	assert.ErrorIs(t, err, mongo.ErrSubscriptionNotFound)
}

func TestCreateCheckout(t *testing.T) {
	setup(t)
	provider := &fakeProvider{}
	BillingProvider = provider

	checkout, err := CreateCheckout(context.Background(), &models.MongoUser{ID: "user-1", Email: "a@b.com"}, "prod_1308g86Vz0IIqbZgpPa9o4", models.YearlyBillingCycle)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/ch_1", checkout.CheckoutURL)
	assert.Equal(t, map[string]string{"user_id": "user-1", "plan_name": "starter", "billing_cycle": "yearly"}, provider.checkout.Metadata())
	assert.Equal(t, "https://voxa.test", provider.checkout.SuccessURL)

	_, err = CreateCheckout(context.Background(), &models.MongoUser{ID: "user-1"}, "prod_unknown", models.MonthlyBillingCycle)
	assert.Error(t, err)
}

func TestCreem_CancelSubscription(t *testing.T) {
	setup(t)
	creem := NewCreem(&config.Config{CreemAPIKey: "creem-key", CreemAPIEndpoint: "https://api.creem.test/"})
	creem.WithHTTPClient(&http.Client{Transport: models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "creem-key", req.Header.Get("x-api-key"))
		assert.Equal(t, "/v1/subscriptions/sub_1/cancel", req.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, true, body["cancel_at_period_end"])
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`{"id":"sub_1","status":"scheduled_cancel"}`)),
		}, nil
	})})

	subscription, err := creem.CancelSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "scheduled_cancel", subscription.Status)
	assert.True(t, subscription.CancelAtPeriodEnd)
}

func TestCreem_ErrorMapping(t *testing.T) {
	setup(t)
	creem := NewCreem(&config.Config{CreemAPIEndpoint: "https://api.creem.test"})
	creem.WithHTTPClient(&http.Client{Transport: models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(bytes.NewBufferString(`{"message":["subscription already canceled"]}`)),
		}, nil
	})})

	_, err := creem.CancelSubscription(context.Background(), "sub_1")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusBadRequest, providerErr.StatusCode)
	assert.Equal(t, "subscription already canceled", providerErr.Message)
}

func TestCreem_CreateCheckout(t *testing.T) {
	setup(t)
	creem := NewCreem(&config.Config{CreemAPIEndpoint: "https://api.creem.test"})
	creem.WithHTTPClient(&http.Client{Transport: models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/checkouts", req.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "prod_x", body["product_id"])
		assert.Equal(t, map[string]any{"email": "a@b.com"}, body["customer"])
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`{"id":"ch_1","checkout_url":"https://creem.test/ch_1"}`)),
		}, nil
	})})

	checkout, err := creem.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u", Email: "a@b.com", Product: models.Product{ID: "prod_x"}})
	require.NoError(t, err)
	assert.Equal(t, "https://creem.test/ch_1", checkout.CheckoutURL)
}
