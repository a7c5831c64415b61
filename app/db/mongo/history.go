package mongo

import (
	"context"
	"errors"
	"fmt"
	"voxa/m/v2/app/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (c *Client) InsertHistory(ctx context.Context, record models.MongoHistory) error {
	_, err := c.history().InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("InsertHistory: failed to insert history for %s: %w", record.UserID, err)
	}
	return nil
}

func (c *Client) ListHistory(ctx context.Context, userID string, limit int64) ([]models.MongoHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := c.history().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("ListHistory: failed to query history of %s: %w", userID, err)
	}
	records := []models.MongoHistory{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("ListHistory: failed to decode history of %s: %w", userID, err)
	}
	return records, nil
}

func (c *Client) InsertVoiceModel(ctx context.Context, voice models.MongoVoiceModel) error {
	_, err := c.voiceModels().InsertOne(ctx, voice)
	if err != nil {
		return fmt.Errorf("InsertVoiceModel: failed to insert voice for %s: %w", voice.UserID, err)
	}
	return nil
}

func (c *Client) ListVoiceModels(ctx context.Context, userID string) ([]models.MongoVoiceModel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.voiceModels().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("ListVoiceModels: failed to query voices of %s: %w", userID, err)
	}
	voices := []models.MongoVoiceModel{}
	if err := cursor.All(ctx, &voices); err != nil {
		return nil, fmt.Errorf("ListVoiceModels: failed to decode voices of %s: %w", userID, err)
	}
	return voices, nil
}

// DeleteVoiceModel removes one of the user's voices and returns what was deleted.
func (c *Client) DeleteVoiceModel(ctx context.Context, userID, id string) (*models.MongoVoiceModel, error) {
	var voice models.MongoVoiceModel
	err := c.voiceModels().FindOneAndDelete(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&voice)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("DeleteVoiceModel: %s of %s: %w", id, userID, ErrVoiceModelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("DeleteVoiceModel: failed to delete voice %s: %w", id, err)
	}
	return &voice, nil
}
