package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"voxa/m/v2/app/api"
	"voxa/m/v2/app/auth"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/elevenlabs"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/notify"
	"voxa/m/v2/app/payments"
	"voxa/m/v2/app/util"
	"voxa/m/v2/app/workers"
	"voxa/m/v2/app/workers/expiry"
	"voxa/m/v2/app/workers/status"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v78"
	"github.com/valyala/fasthttp"
)

func main() {
	done := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env: %v", err)
	}

	env := util.Env("ENV", "dev")
	var dataDogClient statsd.ClientInterface
	dataDogClient, err := statsd.New(util.Env("DATADOG_AGENT_ADDRESS", "datadog-agent.default.svc.cluster.local:8125"), statsd.WithNamespace("voxa."))
	if err != nil {
		if env == "production" {
			log.Fatalf("error creating main DataDog client: %v", err)
		}
		log.Warnf("DataDog client unavailable, metrics disabled: %v", err)
		dataDogClient = &statsd.NoOpClient{}
	}

	config.CONFIG = &config.Config{
		AppName:             util.Env("APP_NAME", "voxa"),
		AppUrl:              util.Env("APP_URL", "http://localhost:3000"),
		BillingProvider:     util.Env("BILLING_PROVIDER", config.BillingProviderCreem),
		Collections:         collections(),
		CreemAPIKey:         util.Env("CREEM_API_KEY", ""),
		CreemAPIEndpoint:    util.Env("CREEM_API_ENDPOINT", "https://api.creem.io"),
		CreemWebhookSecret:  util.Env("CREEM_WEBHOOK_SECRET", ""),
		CronSecret:          util.Env("CRON_SECRET", ""),
		DataDogClient:       dataDogClient,
		ElevenLabsAPIKey:    util.Env("ELEVENLABS_API_KEY"),
		ElevenLabsEndpoint:  util.Env("ELEVENLABS_API_ENDPOINT", "https://api.elevenlabs.io"),
		ElevenLabsStreaming: util.EnvBool("ELEVENLABS_STREAMING", false),
		Environment:         env,
		ExpirySweepInterval: util.EnvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
		FirebaseProjectID:   util.Env("FIREBASE_PROJECT_ID"),
		FirebaseCredentials: util.Env("FIREBASE_CREDENTIALS", ""),
		MongoDBConnection:   util.Env("MONGO_DB_CONNECTION_STRING"),
		MongoDBName:         util.Env("MONGO_DB_NAME", "voxa"),
		ProductCatalog:      util.Env("PRODUCT_CATALOG", ""),
		Redis: config.Redis{
			Host:     util.Env("REDIS_HOST"),
			Port:     util.Env("REDIS_PORT", "6379"),
			Password: util.Env("REDIS_PASSWORD", ""),
		},
		SlackBotToken:        util.Env("SLACK_BOT_TOKEN", ""),
		SlackSystemChannel:   util.Env("SLACK_SYSTEM_CHANNEL", ""),
		StatusWorkerInterval: util.EnvDuration("STATUS_WORKER_INTERVAL", time.Minute),
		StripeEndpointSecret: util.Env("STRIPE_ENDPOINT_SECRET", ""),
		StripeEndpointSuffix: util.Env("STRIPE_ENDPOINT_SUFFIX", "webhook"),
		StripeToken:          util.Env("STRIPE_TOKEN", ""),
		TelegramSystemToken:  util.Env("TELEGRAM_SYSTEM_TOKEN", ""),
		TelegramSystemTo:     util.Env("TELEGRAM_SYSTEM_TO", ""),
	}
	err = config.CONFIG.DataDogClient.Count("main.start", 1, []string{"env:" + config.CONFIG.Environment}, 1)
	if err != nil {
		log.Errorf("error sending metric: %v", err)
	}
	if config.CONFIG.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{
			DisableTimestamp: true,
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			DisableColors: false,
		})
		log.SetLevel(log.TraceLevel)
	}

	redis.RedisClient = redis.NewClient(config.CONFIG.Redis)
	mongo.MongoDBClient = mongo.NewClient(config.CONFIG.MongoDBConnection)

	payments.Catalog, err = models.NewCatalog(config.CONFIG.ProductCatalog)
	util.Assert(err == nil, "PRODUCT_CATALOG:", err)

	stripe.Key = config.CONFIG.StripeToken
	stripe.SetAppInfo(&stripe.AppInfo{
		Name:    config.CONFIG.AppName,
		Version: "0.0.1",
		URL:     config.CONFIG.AppUrl,
	})
	switch config.CONFIG.BillingProvider {
	case config.BillingProviderStripe:
		util.Assert(config.CONFIG.StripeToken != "", "STRIPE_TOKEN is required for the stripe billing provider")
		payments.BillingProvider = &payments.Stripe{SuccessURL: config.CONFIG.AppUrl}
	case config.BillingProviderCreem:
		payments.BillingProvider = payments.NewCreem(config.CONFIG)
	default:
		log.Fatalf("unknown BILLING_PROVIDER %q", config.CONFIG.BillingProvider)
	}

	authClient, err := auth.NewFirebaseClient(context.Background(), config.CONFIG)
	if err != nil {
		log.Fatalf("ERROR creating firebase auth client: %v", err)
	}
	auth.AuthClient = authClient

	speech := elevenlabs.NewAPI(config.CONFIG)
	api.Speech = speech

	notify.SystemNotifier, err = notify.New(config.CONFIG)
	if err != nil {
		log.Fatalf("ERROR creating system notifier: %v", err)
	}

	_, handler := api.NewRouter(config.CONFIG)

	// create status worker
	status.ElevenLabs = speech
	status.WORKER = workers.NewWorker("status", config.CONFIG.StatusWorkerInterval, status.Run)
	go status.WORKER.Start()

	// create expiry worker, the cron endpoint works either way
	if config.CONFIG.ExpirySweepInterval > 0 {
		expiry.WORKER = workers.NewWorker("expiry", config.CONFIG.ExpirySweepInterval, expiry.Run)
		go expiry.WORKER.Start()
	}

	server := &fasthttp.Server{
		Handler:            api.WithTimeout(handler, time.Second*30, "Request timeout"),
		Name:               config.CONFIG.AppName,
		MaxRequestBodySize: 64 << 20,
	}
	go TearDown(sigs, done, server, status.WORKER, expiry.WORKER)

	go func() {
		err := server.ListenAndServe(util.Env("BACKEND_LISTEN_ADDRESS", ":8080"))
		util.Assert(err == nil, "ListenAndServe:", err)
	}()

	successfulStartMessage := fmt.Sprintf("🎙 %s started successfully 🚀 inside %s", config.CONFIG.AppName, util.Env("POD_NAME", "unknown"))
	notify.System(context.Background(), successfulStartMessage)
	log.Info(successfulStartMessage)

	<-done
	log.Info("Done")
}

func collections() config.Collections {
	defaults := config.DefaultCollections()
	return config.Collections{
		Profiles:      util.Env("PROFILES_COLLECTION", defaults.Profiles),
		Subscriptions: util.Env("SUBSCRIPTIONS_COLLECTION", defaults.Subscriptions),
		History:       util.Env("HISTORY_COLLECTION", defaults.History),
		VoiceModels:   util.Env("VOICE_MODELS_COLLECTION", defaults.VoiceModels),
	}
}

func TearDown(sigs chan os.Signal, done chan struct{}, server *fasthttp.Server, statusWorker *workers.Worker, expiryWorker *workers.Worker) {
	<-sigs
	exitMessage := fmt.Sprintf("🎙 %s bids farewell ❌ inside %s", config.CONFIG.AppName, util.Env("POD_NAME", "unknown"))
	log.Info(exitMessage)
	notify.System(context.Background(), exitMessage)

	statusWorker.StopWorker()
	if expiryWorker != nil {
		expiryWorker.StopWorker()
	}
	if err := server.Shutdown(); err != nil {
		log.Errorf("TearDown: server shutdown: %v", err)
	}
	if err := mongo.MongoDBClient.Disconnect(context.Background()); err != nil {
		log.Errorf("TearDown: Disconnecting from MongoDB: %v", err)
	}
	if err := config.CONFIG.DataDogClient.Close(); err != nil {
		log.Errorf("TearDown: closing DataDog client: %v", err)
	}
	done <- struct{}{}
}
