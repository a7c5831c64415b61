package payments

import (
	"context"
	"errors"
	"fmt"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"

	log "github.com/sirupsen/logrus"
)

var ErrNotSubscriptionOwner = errors.New("subscription does not belong to caller")

// CancelSubscription asks the provider to stop renewing at the end of the
// paid period. Local state is left alone; the profile keeps its plan until the
// expiry sweep downgrades it and the subscription record is removed by
// DeleteSubscription.
func CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	if subscriptionID == "" {
		return nil, errors.New("CancelSubscription: empty subscription id")
	}
	if !lib.IsAdmin(ctx) {
		if err := checkOwnership(ctx, lib.UserID(ctx), subscriptionID); err != nil {
			return nil, err
		}
	}

	subscription, err := BillingProvider.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		config.CONFIG.DataDogClient.Incr("subscription.cancel_failed", []string{"provider:" + BillingProvider.Name()}, 1)
		return nil, fmt.Errorf("CancelSubscription: %w", err)
	}
	config.CONFIG.DataDogClient.Incr("subscription.canceled", []string{"provider:" + BillingProvider.Name()}, 1)
	log.WithFields(log.Fields{"user_id": lib.UserID(ctx), "subscription_id": subscriptionID}).Info("Scheduled subscription cancellation at period end")
	return subscription, nil
}

func checkOwnership(ctx context.Context, userID, subscriptionID string) error {
	user, err := mongo.MongoDBClient.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("CancelSubscription: %w", err)
	}
	if user.CreemSubscriptionID == subscriptionID {
		return nil
	}
	record, err := mongo.MongoDBClient.GetSubscriptionByUserID(ctx, userID)
	if err == nil && record.SubscriptionID == subscriptionID {
		return nil
	}
	if err != nil && !errors.Is(err, mongo.ErrSubscriptionNotFound) {
		return fmt.Errorf("CancelSubscription: %w", err)
	}
	return ErrNotSubscriptionOwner
}

// DeleteSubscription removes the local subscription records of a user and
// clears the billing linkage on the profile. mongo.ErrSubscriptionNotFound is
// returned when there was nothing to delete.
func DeleteSubscription(ctx context.Context, userID string) (int64, error) {
	deleted, err := mongo.MongoDBClient.DeleteSubscriptionsByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("DeleteSubscription: %w", err)
	}
	if err := mongo.MongoDBClient.ClearBillingLinkage(ctx, userID); err != nil && !errors.Is(err, mongo.ErrUserNotFound) {
		return deleted, fmt.Errorf("DeleteSubscription: failed to clear billing linkage: %w", err)
	}
	config.CONFIG.DataDogClient.Incr("subscription.deleted", nil, 1)
	log.Infof("Deleted %d subscription record(s) for user %s", deleted, userID)
	return deleted, nil
}

// CreateCheckout starts a provider checkout for the caller.
func CreateCheckout(ctx context.Context, user *models.MongoUser, productID string, cycle models.BillingCycle) (*models.Checkout, error) {
	product, known := Catalog.Lookup(productID)
	if !known {
		return nil, fmt.Errorf("CreateCheckout: unknown product %s", productID)
	}
	checkout, err := BillingProvider.CreateCheckout(ctx, CheckoutRequest{
		UserID:       user.ID,
		Email:        user.Email,
		Product:      product,
		BillingCycle: cycle,
		SuccessURL:   config.CONFIG.AppUrl,
	})
	if err != nil {
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}
	config.CONFIG.DataDogClient.Incr("checkout.created", []string{"plan:" + string(product.Plan)}, 1)
	return checkout, nil
}
