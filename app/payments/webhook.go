package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/db/mongo"
	"voxa/m/v2/app/db/redis"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"
	"voxa/m/v2/app/notify"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const (
	CreemSignatureHeader = "creem-signature"
	WebhookTimeout       = 30 * time.Second
)

// CreemWebhook receives Creem billing events.
func CreemWebhook(ctx *fasthttp.RequestCtx) {
	payload := ctx.Request.Body()

	if secret := config.CONFIG.CreemWebhookSecret; secret != "" {
		signature := string(ctx.Request.Header.Peek(CreemSignatureHeader))
		if !VerifyCreemSignature(payload, signature, secret) {
			log.Warn("CreemWebhook: signature verification failed")
			config.CONFIG.DataDogClient.Incr("webhook.bad_signature", []string{"provider:creem"}, 1)
			lib.WriteError(ctx, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	event, err := models.ParseCreemEvent(payload)
	if err != nil {
		log.WithError(err).Errorf("CreemWebhook: failed to parse event")
		lib.WriteError(ctx, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	processEvent(ctx, event)
}

// processEvent applies a decoded event and writes the response. Shared by the
// Creem and Stripe receivers.
func processEvent(ctx *fasthttp.RequestCtx, event models.Event) {
	requestContext, cancel := context.WithTimeout(context.Background(), WebhookTimeout)
	defer cancel()

	config.CONFIG.DataDogClient.Incr("webhook.event", []string{"event_type:" + event.EventType()}, 1)
	logger := log.WithFields(log.Fields{"event_id": event.EventID(), "event_type": event.EventType()})

	if !redis.MarkEventSeen(requestContext, event.EventID()) {
		logger.Info("Duplicate webhook event, skipping")
		lib.WriteMessage(ctx, http.StatusOK, fmt.Sprintf("event %s already processed", event.EventID()))
		return
	}

	switch e := event.(type) {
	case models.SubscriptionPaidEvent:
		grant, err := HandleSubscriptionPaid(requestContext, e)
		if errors.Is(err, mongo.ErrUserNotFound) {
			logger.Warnf("No profile found for email %s", e.CustomerEmail)
			lib.WriteMessage(ctx, http.StatusOK, "no profile found for customer")
			return
		}
		if err != nil {
			logger.WithError(err).Error("Failed to apply paid subscription")
			config.CONFIG.DataDogClient.Incr("webhook.error", []string{"event_type:" + e.EventType()}, 1)
			redis.ForgetEvent(context.Background(), e.EventID())
			lib.WriteError(ctx, http.StatusInternalServerError, "failed to update subscription")
			return
		}
		go notify.System(context.Background(), fmt.Sprintf("%s paid %s (%s) via %s", e.CustomerEmail, grant.Plan, grant.BillingCycle, e.Provider))
		lib.WriteMessage(ctx, http.StatusOK, "subscription updated")
	case models.IgnoredEvent:
		logger.Debug("Ignoring webhook event")
		lib.WriteMessage(ctx, http.StatusOK, fmt.Sprintf("event %s ignored", e.Type))
	default:
		logger.Errorf("Unhandled event %T", event)
		lib.WriteMessage(ctx, http.StatusOK, "event ignored")
	}
}
