package api

import (
	"context"
	"errors"
	"net/http"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/payments"
	"voxa/m/v2/app/workers/expiry"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type cancelRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

type deleteRequest struct {
	UserID string `json:"userId"`
}

type checkoutRequest struct {
	ProductID    string `json:"productId"`
	BillingCycle string `json:"billingCycle"`
}

// CheckSubscriptions runs the expiry sweep on demand, usually from a cron.
func CheckSubscriptions(ctx *fasthttp.RequestCtx) {
	if !cronAuthorized(ctx) {
		lib.WriteError(ctx, http.StatusUnauthorized, "unauthorized")
		return
	}
	requestContext, cancel := context.WithTimeout(context.Background(), lib.TIMEOUT)
	defer cancel()

	result, err := expiry.Sweep(requestContext)
	if err != nil {
		log.WithError(err).Error("Expiry sweep failed")
		lib.WriteError(ctx, http.StatusInternalServerError, "subscription check failed")
		return
	}
	lib.WriteJSON(ctx, http.StatusOK, result)
}

func CancelSubscription(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	var request cancelRequest
	if !decodeBody(ctx, &request) {
		return
	}
	if request.SubscriptionID == "" {
		lib.WriteError(ctx, http.StatusBadRequest, "subscriptionId is required")
		return
	}

	subscription, err := payments.CancelSubscription(requestContext, request.SubscriptionID)
	switch {
	case errors.Is(err, payments.ErrNotSubscriptionOwner):
		lib.WriteError(ctx, http.StatusForbidden, "subscription does not belong to you")
		return
	case errors.Is(err, mongo.ErrUserNotFound):
		lib.WriteError(ctx, http.StatusNotFound, "profile not found")
		return
	case err != nil:
		log.WithError(err).Errorf("Failed to cancel subscription %s", request.SubscriptionID)
		writeUpstreamError(ctx, err, "failed to cancel subscription")
		return
	}
	lib.WriteJSON(ctx, http.StatusOK, map[string]any{
		"message":      "subscription will be canceled at the end of the billing period",
		"subscription": subscription,
	})
}

func DeleteSubscription(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	var request deleteRequest
	if !decodeBody(ctx, &request) {
		return
	}
	if request.UserID == "" {
		lib.WriteError(ctx, http.StatusBadRequest, "userId is required")
		return
	}
	if request.UserID != user.ID && !lib.IsAdmin(requestContext) {
		lib.WriteError(ctx, http.StatusForbidden, "cannot delete another user's subscription")
		return
	}

	deleted, err := payments.DeleteSubscription(requestContext, request.UserID)
	if errors.Is(err, mongo.ErrSubscriptionNotFound) {
		lib.WriteError(ctx, http.StatusNotFound, "no subscription found")
		return
	}
	if err != nil {
		log.WithError(err).Errorf("Failed to delete subscription for user %s", request.UserID)
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	lib.WriteJSON(ctx, http.StatusOK, map[string]any{"message": "subscription deleted", "deleted": deleted})
}

func CreateCheckout(ctx *fasthttp.RequestCtx, requestContext context.Context, user *models.MongoUser) {
	var request checkoutRequest
	if !decodeBody(ctx, &request) {
		return
	}
	if _, known := payments.Catalog.Lookup(request.ProductID); !known {
		lib.WriteError(ctx, http.StatusBadRequest, "unknown product")
		return
	}

	checkout, err := payments.CreateCheckout(requestContext, user, request.ProductID, models.ParseBillingCycle(request.BillingCycle))
	if err != nil {
		log.WithError(err).Errorf("Failed to create checkout for user %s", user.ID)
		writeUpstreamError(ctx, err, "failed to create checkout")
		return
	}
	lib.WriteJSON(ctx, http.StatusOK, map[string]string{"checkout_url": checkout.CheckoutURL})
}
