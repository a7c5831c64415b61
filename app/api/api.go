// Package api exposes the HTTP endpoints of the backend.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"voxa/m/v2/app/auth"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/elevenlabs"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/payments"
	statusworker "voxa/m/v2/app/workers/status"

	fasthttpprom "github.com/carousell/fasthttp-prometheus-middleware"
	"github.com/fasthttp/router"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// SpeechAPI is the speech provider used by the handlers.
type SpeechAPI interface {
	CreateSpeech(ctx context.Context, tts models.TTSRequest) ([]byte, error)
	CloneVoice(ctx context.Context, request models.CloneVoiceRequest) (*models.Voice, error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

var Speech SpeechAPI

const StatusCacheTTL = time.Minute

// Routes bounded by lib.TIMEOUT rather than the server request timeout. A
// reservation is only kept when the response reaches the caller.
var longRunningPaths = map[string]bool{
	"/api/tts":                 true,
	"/api/voices":              true,
	"/api/check-subscriptions": true,
}

// NewRouter registers every route and returns the handler with Prometheus
// request metrics, served on /metrics.
func NewRouter(cfg *config.Config) (*router.Router, fasthttp.RequestHandler) {
	rtr := routes(cfg)
	p := fasthttpprom.NewPrometheus("")
	p.Use(rtr)
	return rtr, p.Handler
}

// WithTimeout wraps handler in fasthttp.TimeoutHandler except for the long
// running routes.
func WithTimeout(handler fasthttp.RequestHandler, timeout time.Duration, msg string) fasthttp.RequestHandler {
	timed := fasthttp.TimeoutHandler(handler, timeout, msg)
	return func(ctx *fasthttp.RequestCtx) {
		if longRunningPaths[string(ctx.Path())] {
			handler(ctx)
			return
		}
		timed(ctx)
	}
}

func routes(cfg *config.Config) *router.Router {
	rtr := router.New()
	rtr.GET("/", func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect(cfg.AppUrl, fasthttp.StatusFound)
	})
	rtr.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.WriteString("ok")
	})
	rtr.GET("/status", SystemStatus)

	rtr.POST("/api/webhook", payments.CreemWebhook)
	rtr.POST(fmt.Sprintf("/stripe_%s", cfg.StripeEndpointSuffix), payments.StripeWebhook)
	rtr.GET("/api/check-subscriptions", CheckSubscriptions)

	rtr.POST("/api/cancel-subscription", auth.Authenticated(CancelSubscription))
	rtr.POST("/api/delete-subscription", auth.Authenticated(DeleteSubscription))
	rtr.POST("/api/create-checkout", auth.Authenticated(CreateCheckout))

	rtr.POST("/api/tts", auth.Authenticated(TextToSpeech))
	rtr.GET("/api/history", auth.Authenticated(History))
	rtr.POST("/api/voices", auth.Authenticated(CreateVoice))
	rtr.GET("/api/voices", auth.Authenticated(ListVoices))
	rtr.DELETE("/api/voices/{id}", auth.Authenticated(DeleteVoice))

	rtr.GET("/api/profile", auth.Authenticated(Profile))
	rtr.DELETE("/api/account", auth.Authenticated(DeleteAccount))
	return rtr
}

func SystemStatus(ctx *fasthttp.RequestCtx) {
	systemStatus, err := redis.WrapInCache(redis.RedisClient, statusworker.SystemStatusKey, StatusCacheTTL, statusworker.FetchStatus)()
	if err != nil {
		log.WithError(err).Error("failed to fetch system status")
		lib.WriteError(ctx, http.StatusInternalServerError, "failed to fetch system status")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(http.StatusOK)
	ctx.SetBodyString(systemStatus)
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		lib.WriteError(ctx, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// cronAuthorized checks the optional CRON_SECRET bearer token.
func cronAuthorized(ctx *fasthttp.RequestCtx) bool {
	secret := config.CONFIG.CronSecret
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(lib.BearerToken(ctx)), []byte(secret)) == 1
}

// writeUpstreamError maps a provider failure to the response. Provider
// statuses are passed through; anything unknown is a 500.
func writeUpstreamError(ctx *fasthttp.RequestCtx, err error, fallback string) {
	var providerErr *payments.ProviderError
	var speechErr *elevenlabs.APIError
	switch {
	case errors.As(err, &providerErr):
		lib.WriteError(ctx, upstreamStatus(providerErr.StatusCode), providerErr.Message)
	case errors.As(err, &speechErr):
		lib.WriteError(ctx, upstreamStatus(speechErr.StatusCode), speechErr.Message)
	default:
		lib.WriteError(ctx, http.StatusInternalServerError, fallback)
	}
}

func upstreamStatus(status int) int {
	if status < 400 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}
