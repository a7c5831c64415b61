package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"voxa/m/v2/app/models"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MockMongoDBClient is an in-memory MongoClient for tests. Updates are
// applied under a single lock, so conditional updates behave atomically like
// their mongo counterparts.
type MockMongoDBClient struct {
	MongoClient

	mu            sync.Mutex
	Users         map[string]*models.MongoUser
	Subscriptions map[string]*models.MongoSubscription
	History       []models.MongoHistory
	VoiceModels   map[string]*models.MongoVoiceModel

	// FailUpdates makes every write touching the given user id fail.
	FailUpdates map[string]error
	PingErr     error
}

func NewMockMongoDBClient(users ...models.MongoUser) *MockMongoDBClient {
	m := &MockMongoDBClient{
		Users:         map[string]*models.MongoUser{},
		Subscriptions: map[string]*models.MongoSubscription{},
		VoiceModels:   map[string]*models.MongoVoiceModel{},
		FailUpdates:   map[string]error{},
	}
	for i := range users {
		user := users[i]
		m.Users[user.ID] = &user
	}
	return m
}

func (m *MockMongoDBClient) failure(userID string) error {
	if err, ok := m.FailUpdates[userID]; ok {
		return err
	}
	return nil
}

// User returns a copy of the stored profile, or nil.
func (m *MockMongoDBClient) User(userID string) *models.MongoUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.Users[userID]
	if !ok {
		return nil
	}
	copied := *user
	return &copied
}

func (m *MockMongoDBClient) Disconnect(ctx context.Context) error {
	return nil
}

func (m *MockMongoDBClient) Ping(ctx context.Context, rp *readpref.ReadPref) error {
	return m.PingErr
}

func (m *MockMongoDBClient) GetUser(ctx context.Context) (*models.MongoUser, error) {
	userId, _ := ctx.Value(models.UserContext{}).(string)
	return m.GetUserByID(ctx, userId)
}

func (m *MockMongoDBClient) GetUserByID(ctx context.Context, userID string) (*models.MongoUser, error) {
	user := m.User(userID)
	if user == nil {
		return nil, fmt.Errorf("GetUserByID: %s: %w", userID, ErrUserNotFound)
	}
	return user, nil
}

func (m *MockMongoDBClient) GetUserByEmail(ctx context.Context, email string) (*models.MongoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.Users {
		if email != "" && user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("GetUserByEmail: %s: %w", email, ErrUserNotFound)
}

func (m *MockMongoDBClient) CreateUser(ctx context.Context, user models.MongoUser) (*models.MongoUser, error) {
	m.mu.Lock()
	if err := m.failure(user.ID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if _, ok := m.Users[user.ID]; !ok {
		now := time.Now().UTC()
		user.CreatedAt = now
		user.UpdatedAt = now
		m.Users[user.ID] = &user
	}
	m.mu.Unlock()
	return m.GetUserByID(ctx, user.ID)
}

func (m *MockMongoDBClient) ForEachUser(ctx context.Context, fn func(user *models.MongoUser, err error)) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.Users))
	for id := range m.Users {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if user := m.User(id); user != nil {
			fn(user, nil)
		}
	}
	return nil
}

func (m *MockMongoDBClient) GetUsersCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Users)), nil
}

func (m *MockMongoDBClient) GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, user := range m.Users {
		if user.IsActive && user.CurrentActivePlan == plan {
			count++
		}
	}
	return count, nil
}

func (m *MockMongoDBClient) ApplyPlanGrant(ctx context.Context, userID string, grant models.PlanGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return err
	}
	user, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("ApplyPlanGrant: %s: %w", userID, ErrUserNotFound)
	}
	start, expiry := grant.StartDate, grant.ExpiryDate
	user.CurrentActivePlan = grant.Plan
	user.PlanType = string(grant.Plan)
	user.ActiveProductID = grant.ProductID
	user.BillingCycle = grant.BillingCycle
	user.CharAllowed = grant.CharAllowed
	user.CharRemaining = grant.CharAllowed
	user.VoiceCloneAllowed = grant.VoiceCloneAllowed
	user.CurrentPlanStartDate = &start
	user.CurrentPlanExpiryDate = &expiry
	user.CreemCustomerID = grant.CustomerID
	user.CreemSubscriptionID = grant.SubscriptionID
	user.IsActive = true
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockMongoDBClient) ClearBillingLinkage(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return err
	}
	user, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("ClearBillingLinkage: %s: %w", userID, ErrUserNotFound)
	}
	user.CreemCustomerID = ""
	user.CreemSubscriptionID = ""
	user.ActiveProductID = ""
	user.BillingCycle = ""
	user.PlanType = ""
	return nil
}

func (m *MockMongoDBClient) DowngradeExpiredUser(ctx context.Context, userID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return false, err
	}
	user, ok := m.Users[userID]
	if !ok || !user.IsActive || !user.IsExpired(now) {
		return false, nil
	}
	*user = models.MongoUser{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Picture:        user.Picture,
		VoiceCloneUsed: user.VoiceCloneUsed,
		IsAdmin:        user.IsAdmin,
		IsActive:       false,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      now.UTC(),
	}
	return true, nil
}

func (m *MockMongoDBClient) ReserveCharacters(ctx context.Context, userID string, characters int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return 0, err
	}
	user, ok := m.Users[userID]
	if !ok {
		return 0, fmt.Errorf("ReserveCharacters: %s: %w", userID, ErrUserNotFound)
	}
	if user.CharRemaining < characters {
		return 0, fmt.Errorf("ReserveCharacters: %d for %s: %w", characters, userID, ErrInsufficientQuota)
	}
	user.CharRemaining -= characters
	return user.CharRemaining, nil
}

func (m *MockMongoDBClient) RefundCharacters(ctx context.Context, userID string, characters int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return err
	}
	if user, ok := m.Users[userID]; ok {
		user.CharRemaining = min(user.CharAllowed, user.CharRemaining+characters)
	}
	return nil
}

func (m *MockMongoDBClient) ReserveVoiceClone(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return err
	}
	user, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("ReserveVoiceClone: %s: %w", userID, ErrUserNotFound)
	}
	if !user.IsActive {
		return fmt.Errorf("ReserveVoiceClone: %s: %w", userID, ErrInactiveAccount)
	}
	if user.VoiceCloneUsed >= user.VoiceCloneAllowed {
		return fmt.Errorf("ReserveVoiceClone: %s: %w", userID, ErrVoiceCloneLimit)
	}
	user.VoiceCloneUsed++
	return nil
}

func (m *MockMongoDBClient) ReleaseVoiceClone(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.Users[userID]; ok && user.VoiceCloneUsed > 0 {
		user.VoiceCloneUsed--
	}
	return nil
}

func (m *MockMongoDBClient) DeleteUserData(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return err
	}
	history := m.History[:0]
	for _, record := range m.History {
		if record.UserID != userID {
			history = append(history, record)
		}
	}
	m.History = history
	for id, voice := range m.VoiceModels {
		if voice.UserID == userID {
			delete(m.VoiceModels, id)
		}
	}
	delete(m.Subscriptions, userID)
	if _, ok := m.Users[userID]; !ok {
		return fmt.Errorf("DeleteUserData: %s: %w", userID, ErrUserNotFound)
	}
	delete(m.Users, userID)
	return nil
}

func (m *MockMongoDBClient) UpsertSubscription(ctx context.Context, subscription models.MongoSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subscription.UserID == "" {
		return errors.New("UpsertSubscription: user_id is required")
	}
	if err := m.failure(subscription.UserID); err != nil {
		return err
	}
	if existing, ok := m.Subscriptions[subscription.UserID]; ok {
		subscription.ID = existing.ID
		subscription.CreatedAt = existing.CreatedAt
	}
	m.Subscriptions[subscription.UserID] = &subscription
	return nil
}

func (m *MockMongoDBClient) GetSubscriptionByUserID(ctx context.Context, userID string) (*models.MongoSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subscription, ok := m.Subscriptions[userID]
	if !ok {
		return nil, fmt.Errorf("GetSubscriptionByUserID: %s: %w", userID, ErrSubscriptionNotFound)
	}
	copied := *subscription
	return &copied, nil
}

func (m *MockMongoDBClient) DeleteSubscriptionsByUserID(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(userID); err != nil {
		return 0, err
	}
	if _, ok := m.Subscriptions[userID]; !ok {
		return 0, fmt.Errorf("DeleteSubscriptionsByUserID: %s: %w", userID, ErrSubscriptionNotFound)
	}
	delete(m.Subscriptions, userID)
	return 1, nil
}

func (m *MockMongoDBClient) InsertHistory(ctx context.Context, record models.MongoHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.History = append(m.History, record)
	return nil
}

func (m *MockMongoDBClient) ListHistory(ctx context.Context, userID string, limit int64) ([]models.MongoHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := []models.MongoHistory{}
	for i := len(m.History) - 1; i >= 0 && int64(len(records)) < limit; i-- {
		if m.History[i].UserID == userID {
			records = append(records, m.History[i])
		}
	}
	return records, nil
}

func (m *MockMongoDBClient) InsertVoiceModel(ctx context.Context, voice models.MongoVoiceModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VoiceModels[voice.ID] = &voice
	return nil
}

func (m *MockMongoDBClient) ListVoiceModels(ctx context.Context, userID string) ([]models.MongoVoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	voices := []models.MongoVoiceModel{}
	for _, voice := range m.VoiceModels {
		if voice.UserID == userID {
			voices = append(voices, *voice)
		}
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].CreatedAt.After(voices[j].CreatedAt) })
	return voices, nil
}

func (m *MockMongoDBClient) DeleteVoiceModel(ctx context.Context, userID, id string) (*models.MongoVoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	voice, ok := m.VoiceModels[id]
	if !ok || voice.UserID != userID {
		return nil, fmt.Errorf("DeleteVoiceModel: %s of %s: %w", id, userID, ErrVoiceModelNotFound)
	}
	delete(m.VoiceModels, id)
	return voice, nil
}
