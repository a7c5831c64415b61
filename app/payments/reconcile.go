package payments

import (
	"context"
	"fmt"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/models"

	log "github.com/sirupsen/logrus"
)

var (
	Catalog = models.Catalog(models.DefaultProducts)
	Now     = time.Now
)

// HandleSubscriptionPaid moves the paying profile onto the purchased plan.
// The quota is reset to the plan allotment; characters left from the previous
// period are not carried over. A missing profile returns mongo.ErrUserNotFound.
func HandleSubscriptionPaid(ctx context.Context, event models.SubscriptionPaidEvent) (*models.PlanGrant, error) {
	if event.CustomerEmail == "" {
		return nil, fmt.Errorf("HandleSubscriptionPaid: event %s has no customer email: %w", event.ID, mongo.ErrUserNotFound)
	}
	user, err := mongo.MongoDBClient.GetUserByEmail(ctx, event.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("HandleSubscriptionPaid: %w", err)
	}

	product, known := Catalog.Lookup(event.ProductID)
	if !known {
		log.Warnf("HandleSubscriptionPaid: unknown product %s, granting %d characters", event.ProductID, product.Characters)
		config.CONFIG.DataDogClient.Incr("webhook.unknown_product", []string{"product:" + event.ProductID}, 1)
	}
	plan := product.Plan
	if event.PlanName != "" && !known {
		plan = models.PlanName(event.PlanName)
	}

	start := Now().UTC()
	grant := models.PlanGrant{
		Plan:              plan,
		ProductID:         event.ProductID,
		BillingCycle:      event.BillingCycle,
		CharAllowed:       product.Characters,
		VoiceCloneAllowed: product.VoiceClones,
		CustomerID:        event.CustomerID,
		SubscriptionID:    event.SubscriptionID,
		StartDate:         start,
		ExpiryDate:        event.BillingCycle.ExpiryFrom(start),
	}
	if err := mongo.MongoDBClient.ApplyPlanGrant(ctx, user.ID, grant); err != nil {
		return nil, fmt.Errorf("HandleSubscriptionPaid: failed to apply plan to user %s: %w", user.ID, err)
	}

	err = mongo.MongoDBClient.UpsertSubscription(ctx, models.MongoSubscription{
		UserID:         user.ID,
		Provider:       event.Provider,
		CustomerID:     event.CustomerID,
		SubscriptionID: event.SubscriptionID,
		ProductID:      event.ProductID,
		PlanName:       plan,
		BillingCycle:   event.BillingCycle,
		PeriodStart:    grant.StartDate,
		PeriodEnd:      grant.ExpiryDate,
		CreatedAt:      start,
	})
	if err != nil {
		return nil, fmt.Errorf("HandleSubscriptionPaid: failed to record subscription for user %s: %w", user.ID, err)
	}

	config.CONFIG.DataDogClient.Incr("subscription.paid", []string{"plan:" + string(plan), "cycle:" + string(event.BillingCycle), "provider:" + event.Provider}, 1)
	log.WithFields(log.Fields{
		"user_id":         user.ID,
		"plan":            plan,
		"billing_cycle":   event.BillingCycle,
		"subscription_id": event.SubscriptionID,
		"expiry":          grant.ExpiryDate,
	}).Info("Applied paid subscription")
	return &grant, nil
}
