package mongo

import (
	"context"
	"errors"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gopkg.in/cenkalti/backoff.v1"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrVoiceModelNotFound   = errors.New("voice model not found")
	ErrInsufficientQuota    = errors.New("insufficient character quota")
	ErrVoiceCloneLimit      = errors.New("voice clone limit reached")
	ErrInactiveAccount      = errors.New("account is not active")
)

// Client is a mongo client
type Client struct {
	*mongo.Client
}

type MongoClient interface {
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context, rp *readpref.ReadPref) error

	// profiles
	GetUser(ctx context.Context) (*models.MongoUser, error)
	GetUserByID(ctx context.Context, userID string) (*models.MongoUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.MongoUser, error)
	CreateUser(ctx context.Context, user models.MongoUser) (*models.MongoUser, error)
	ForEachUser(ctx context.Context, fn func(user *models.MongoUser, err error)) error
	GetUsersCount(ctx context.Context) (int64, error)
	GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error)
	ApplyPlanGrant(ctx context.Context, userID string, grant models.PlanGrant) error
	ClearBillingLinkage(ctx context.Context, userID string) error
	DowngradeExpiredUser(ctx context.Context, userID string, now time.Time) (bool, error)
	ReserveCharacters(ctx context.Context, userID string, characters int64) (int64, error)
	RefundCharacters(ctx context.Context, userID string, characters int64) error
	ReserveVoiceClone(ctx context.Context, userID string) error
	ReleaseVoiceClone(ctx context.Context, userID string) error
	DeleteUserData(ctx context.Context, userID string) error

	// subscriptions
	UpsertSubscription(ctx context.Context, subscription models.MongoSubscription) error
	GetSubscriptionByUserID(ctx context.Context, userID string) (*models.MongoSubscription, error)
	DeleteSubscriptionsByUserID(ctx context.Context, userID string) (int64, error)

	// history & voices
	InsertHistory(ctx context.Context, record models.MongoHistory) error
	ListHistory(ctx context.Context, userID string, limit int64) ([]models.MongoHistory, error)
	InsertVoiceModel(ctx context.Context, voice models.MongoVoiceModel) error
	ListVoiceModels(ctx context.Context, userID string) ([]models.MongoVoiceModel, error)
	DeleteVoiceModel(ctx context.Context, userID, id string) (*models.MongoVoiceModel, error)
}

var MongoDBClient MongoClient

// NewClient creates a new mongo client
func NewClient(connection string) *Client {
	return &Client{
		Client: mustConnect(connection),
	}
}

// mustConnect connects to mongo and panics once the backoff gives up
func mustConnect(connection string) *mongo.Client {
	client, err := mongo.NewClient(options.Client().ApplyURI(connection).SetMaxConnecting(25))
	if err != nil {
		logrus.WithError(err).Panic("failed to create mongo client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = client.Connect(ctx)
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to mongo")
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		pingErr := client.Ping(pingCtx, readpref.Primary())
		if pingErr != nil {
			logrus.WithError(pingErr).Warn("mongo is not reachable yet, retrying..")
		}
		return pingErr
	}, policy)
	if err != nil {
		logrus.WithError(err).Panic("failed to ping mongo")
	}

	return client
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.Database(config.CONFIG.MongoDBName).Collection(name)
}

func (c *Client) profiles() *mongo.Collection {
	return c.collection(config.CONFIG.Collections.Profiles)
}

func (c *Client) subscriptions() *mongo.Collection {
	return c.collection(config.CONFIG.Collections.Subscriptions)
}

func (c *Client) history() *mongo.Collection {
	return c.collection(config.CONFIG.Collections.History)
}

func (c *Client) voiceModels() *mongo.Collection {
	return c.collection(config.CONFIG.Collections.VoiceModels)
}
