package config

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var CONFIG *Config

const (
	BillingProviderCreem  = "creem"
	BillingProviderStripe = "stripe"
)

type Config struct {
	AppName               string
	AppUrl                string
	BillingProvider       string
	Collections           Collections
	CreemAPIKey           string
	CreemAPIEndpoint      string
	CreemWebhookSecret    string
	CronSecret            string
	DataDogClient         statsd.ClientInterface
	ElevenLabsAPIKey      string
	ElevenLabsEndpoint    string
	ElevenLabsStreaming   bool
	Environment           string
	ExpirySweepInterval   time.Duration
	FirebaseProjectID     string
	FirebaseCredentials   string
	MongoDBName           string
	MongoDBConnection     string
	ProductCatalog        string
	Redis                 Redis
	SlackBotToken         string
	SlackSystemChannel    string
	StatusWorkerInterval  time.Duration
	StripeEndpointSecret  string
	StripeEndpointSuffix  string
	StripeToken           string
	TelegramSystemToken   string
	TelegramSystemTo      string
}

type Collections struct {
	Profiles      string
	Subscriptions string
	History       string
	VoiceModels   string
}

type Redis struct {
	Host     string
	Port     string
	Password string
}

// DefaultCollections mirrors the collection names the frontend was originally deployed with.
func DefaultCollections() Collections {
	return Collections{
		Profiles:      "profiles",
		Subscriptions: "subscriptions",
		History:       "history",
		VoiceModels:   "voice_models",
	}
}
