package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"voxa/m/v2/app/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertSubscription keeps a single subscription document per user.
func (c *Client) UpsertSubscription(ctx context.Context, subscription models.MongoSubscription) error {
	if subscription.UserID == "" {
		return errors.New("UpsertSubscription: user_id is required")
	}
	id := subscription.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"provider":        subscription.Provider,
			"customer_id":     subscription.CustomerID,
			"subscription_id": subscription.SubscriptionID,
			"product_id":      subscription.ProductID,
			"plan_name":       subscription.PlanName,
			"billing_cycle":   subscription.BillingCycle,
			"period_start":    subscription.PeriodStart,
			"period_end":      subscription.PeriodEnd,
		},
		"$setOnInsert": bson.M{
			"_id":        id,
			"created_at": now,
		},
	}
	_, err := c.subscriptions().UpdateOne(ctx, bson.M{"user_id": subscription.UserID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("UpsertSubscription: failed to upsert subscription for %s: %w", subscription.UserID, err)
	}
	return nil
}

func (c *Client) GetSubscriptionByUserID(ctx context.Context, userID string) (*models.MongoSubscription, error) {
	var subscription models.MongoSubscription
	err := c.subscriptions().FindOne(ctx, bson.M{"user_id": userID}).Decode(&subscription)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("GetSubscriptionByUserID: %s: %w", userID, ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetSubscriptionByUserID: failed to find subscription: %w", err)
	}
	return &subscription, nil
}

func (c *Client) DeleteSubscriptionsByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := c.subscriptions().DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("DeleteSubscriptionsByUserID: failed to delete subscriptions of %s: %w", userID, err)
	}
	if result.DeletedCount == 0 {
		return 0, fmt.Errorf("DeleteSubscriptionsByUserID: %s: %w", userID, ErrSubscriptionNotFound)
	}
	return result.DeletedCount, nil
}
