package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"voxa/m/v2/app/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (c *Client) GetUser(ctx context.Context) (*models.MongoUser, error) {
	userId, _ := ctx.Value(models.UserContext{}).(string)
	if userId == "" {
		return nil, fmt.Errorf("GetUser: no user in context: %w", ErrUserNotFound)
	}
	return c.GetUserByID(ctx, userId)
}

func (c *Client) GetUserByID(ctx context.Context, userID string) (*models.MongoUser, error) {
	return c.findUser(ctx, bson.M{"_id": userID})
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.MongoUser, error) {
	if email == "" {
		return nil, fmt.Errorf("GetUserByEmail: empty email: %w", ErrUserNotFound)
	}
	return c.findUser(ctx, bson.M{"email": email})
}

func (c *Client) findUser(ctx context.Context, filter bson.M) (*models.MongoUser, error) {
	var user models.MongoUser
	err := c.profiles().FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("findUser: %v: %w", filter, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("findUser: failed to find user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts the profile unless one already exists for the id and
// returns whatever is stored afterwards.
func (c *Client) CreateUser(ctx context.Context, user models.MongoUser) (*models.MongoUser, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"email":                    user.Email,
			"name":                     user.Name,
			"picture":                  user.Picture,
			"current_active_plan":      user.CurrentActivePlan,
			"plan_type":                nil,
			"active_product_id":        nil,
			"billing_cycle":            nil,
			"char_allowed":             user.CharAllowed,
			"char_remaining":           user.CharRemaining,
			"voice_clone_allowed":      user.VoiceCloneAllowed,
			"voice_clone_used":         int64(0),
			"current_plan_start_date":  nil,
			"current_plan_expiry_date": nil,
			"creem_customer_id":        nil,
			"creem_subscription_id":    nil,
			"is_admin":                 false,
			"is_active":                user.IsActive,
			"created_at":               now,
			"updated_at":               now,
		},
	}
	_, err := c.profiles().UpdateOne(ctx, bson.M{"_id": user.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("CreateUser: failed to upsert user %s: %w", user.ID, err)
	}
	return c.GetUserByID(ctx, user.ID)
}

func (c *Client) ForEachUser(ctx context.Context, fn func(user *models.MongoUser, err error)) error {
	cursor, err := c.profiles().Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("ForEachUser: failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user models.MongoUser
		if err := cursor.Decode(&user); err != nil {
			fn(nil, fmt.Errorf("ForEachUser: failed to decode user %v: %w", cursor.Current.Lookup("_id"), err))
			continue
		}
		fn(&user, nil)
	}
	return cursor.Err()
}

func (c *Client) GetUsersCount(ctx context.Context) (int64, error) {
	count, err := c.profiles().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCount: failed to get users count: %w", err)
	}
	return count, nil
}

func (c *Client) GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error) {
	count, err := c.profiles().CountDocuments(ctx, bson.M{"current_active_plan": plan, "is_active": true})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCountForPlan: failed to get users count: %w", err)
	}
	return count, nil
}

// ApplyPlanGrant overwrites plan and quota state. Both char_allowed and
// char_remaining are reset, so unused characters from a previous plan are forfeited.
func (c *Client) ApplyPlanGrant(ctx context.Context, userID string, grant models.PlanGrant) error {
	update := bson.M{
		"$set": bson.M{
			"current_active_plan":      grant.Plan,
			"plan_type":                string(grant.Plan),
			"active_product_id":        grant.ProductID,
			"billing_cycle":            grant.BillingCycle,
			"char_allowed":             grant.CharAllowed,
			"char_remaining":           grant.CharAllowed,
			"voice_clone_allowed":      grant.VoiceCloneAllowed,
			"current_plan_start_date":  grant.StartDate,
			"current_plan_expiry_date": grant.ExpiryDate,
			"creem_customer_id":        grant.CustomerID,
			"creem_subscription_id":    grant.SubscriptionID,
			"is_active":                true,
			"updated_at":               time.Now().UTC(),
		},
	}
	result, err := c.profiles().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("ApplyPlanGrant: failed to update user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("ApplyPlanGrant: %s: %w", userID, ErrUserNotFound)
	}
	return nil
}

func (c *Client) ClearBillingLinkage(ctx context.Context, userID string) error {
	update := bson.M{
		"$set": bson.M{
			"creem_customer_id":     nil,
			"creem_subscription_id": nil,
			"active_product_id":     nil,
			"billing_cycle":         nil,
			"plan_type":             nil,
			"updated_at":            time.Now().UTC(),
		},
	}
	result, err := c.profiles().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("ClearBillingLinkage: failed to update user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("ClearBillingLinkage: %s: %w", userID, ErrUserNotFound)
	}
	return nil
}

// DowngradeExpiredUser deactivates the profile and nulls every plan, quota and
// billing field in a single update. It reports false when the profile is
// already inactive or not expired.
func (c *Client) DowngradeExpiredUser(ctx context.Context, userID string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":                      userID,
		"is_active":                true,
		"current_plan_expiry_date": bson.M{"$lt": now},
	}
	update := bson.M{"$set": downgradeFields(now)}
	result, err := c.profiles().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("DowngradeExpiredUser: failed to update user %s: %w", userID, err)
	}
	return result.ModifiedCount > 0, nil
}

func downgradeFields(now time.Time) bson.M {
	return bson.M{
		"is_active":                false,
		"current_active_plan":      nil,
		"plan_type":                nil,
		"active_product_id":        nil,
		"billing_cycle":            nil,
		"char_allowed":             nil,
		"char_remaining":           nil,
		"voice_clone_allowed":      nil,
		"current_plan_start_date":  nil,
		"current_plan_expiry_date": nil,
		"creem_customer_id":        nil,
		"creem_subscription_id":    nil,
		"updated_at":               now.UTC(),
	}
}

// ReserveCharacters atomically takes characters off char_remaining, failing
// with ErrInsufficientQuota instead of going below zero.
func (c *Client) ReserveCharacters(ctx context.Context, userID string, characters int64) (int64, error) {
	filter := bson.M{"_id": userID, "char_remaining": bson.M{"$gte": characters}}
	update := bson.M{"$inc": bson.M{"char_remaining": -characters}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.MongoUser
	err := c.profiles().FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := c.GetUserByID(ctx, userID); getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("ReserveCharacters: %d for %s: %w", characters, userID, ErrInsufficientQuota)
	}
	if err != nil {
		return 0, fmt.Errorf("ReserveCharacters: failed to update user %s: %w", userID, err)
	}
	return user.CharRemaining, nil
}

// RefundCharacters gives back a reservation without exceeding char_allowed,
// which may have been reset by a webhook in between.
func (c *Client) RefundCharacters(ctx context.Context, userID string, characters int64) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"char_remaining": bson.M{"$min": bson.A{
				"$char_allowed",
				bson.M{"$add": bson.A{"$char_remaining", characters}},
			}},
		}}},
	}
	_, err := c.profiles().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("RefundCharacters: failed to update user %s: %w", userID, err)
	}
	return nil
}

func (c *Client) ReserveVoiceClone(ctx context.Context, userID string) error {
	filter := bson.M{
		"_id":       userID,
		"is_active": true,
		"$expr":     bson.M{"$lt": bson.A{"$voice_clone_used", "$voice_clone_allowed"}},
	}
	update := bson.M{"$inc": bson.M{"voice_clone_used": 1}}
	result, err := c.profiles().UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("ReserveVoiceClone: failed to update user %s: %w", userID, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	user, err := c.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return fmt.Errorf("ReserveVoiceClone: %s: %w", userID, ErrInactiveAccount)
	}
	return fmt.Errorf("ReserveVoiceClone: %s used %d of %d: %w", userID, user.VoiceCloneUsed, user.VoiceCloneAllowed, ErrVoiceCloneLimit)
}

func (c *Client) ReleaseVoiceClone(ctx context.Context, userID string) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"voice_clone_used": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{"$voice_clone_used", 1}},
			}},
		}}},
	}
	_, err := c.profiles().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("ReleaseVoiceClone: failed to update user %s: %w", userID, err)
	}
	return nil
}

// DeleteUserData removes everything stored for the user, profile last.
func (c *Client) DeleteUserData(ctx context.Context, userID string) error {
	if _, err := c.history().DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("DeleteUserData: failed to delete history of %s: %w", userID, err)
	}
	if _, err := c.voiceModels().DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("DeleteUserData: failed to delete voice models of %s: %w", userID, err)
	}
	if _, err := c.subscriptions().DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("DeleteUserData: failed to delete subscriptions of %s: %w", userID, err)
	}
	result, err := c.profiles().DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("DeleteUserData: failed to delete profile of %s: %w", userID, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("DeleteUserData: %s: %w", userID, ErrUserNotFound)
	}
	return nil
}
