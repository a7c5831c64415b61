package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/lib"
	"voxa/m/v2/app/models"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/product"
	"github.com/stripe/stripe-go/v78/subscription"
	"github.com/stripe/stripe-go/v78/webhook"
	"github.com/valyala/fasthttp"
)

const InvoicePaidEventType = "invoice.paid"

func StripeWebhook(ctx *fasthttp.RequestCtx) {
	payload := ctx.Request.Body()
	signatureHeader := string(ctx.Request.Header.Peek("Stripe-Signature"))

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, config.CONFIG.StripeEndpointSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Errorf("Webhook signature verification failed. %v", err)
		lib.WriteError(ctx, http.StatusBadRequest, "invalid signature")
		return
	}
	config.CONFIG.DataDogClient.Incr("stripe.webhook", []string{"event_type:" + string(event.Type)}, 1)

	parsed, err := stripeEvent(event)
	if err != nil {
		log.Errorf("Error parsing %s webhook JSON: %v", event.Type, err)
		lib.WriteError(ctx, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	processEvent(ctx, parsed)
}

// stripeEvent maps a Stripe event onto the provider-neutral event types.
func stripeEvent(event stripe.Event) (models.Event, error) {
	if event.Type != InvoicePaidEventType {
		return models.IgnoredEvent{ID: event.ID, Type: string(event.Type)}, nil
	}
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, errors.Join(models.ErrMalformedEvent, err)
	}

	paid := models.SubscriptionPaidEvent{
		ID:            event.ID,
		Provider:      config.BillingProviderStripe,
		CustomerEmail: invoice.CustomerEmail,
		BillingCycle:  models.MonthlyBillingCycle,
	}
	if invoice.Customer != nil {
		paid.CustomerID = invoice.Customer.ID
	}
	if invoice.Subscription != nil {
		paid.SubscriptionID = invoice.Subscription.ID
	}
	if invoice.Lines != nil && len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0]
		paid.PlanName = line.Metadata[models.MetadataPlanName]
		if price := line.Price; price != nil {
			if price.Product != nil {
				paid.ProductID = price.Product.ID
			}
			if price.Recurring != nil && price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
				paid.BillingCycle = models.YearlyBillingCycle
			}
		}
	}
	return paid, nil
}

// Stripe is the Provider backed by the stripe-go SDK; stripe.Key is set in main.
type Stripe struct {
	SuccessURL string
}

func (s *Stripe) Name() string {
	return config.BillingProviderStripe
}

func (s *Stripe) CreateCheckout(ctx context.Context, request CheckoutRequest) (*models.Checkout, error) {
	p, err := product.Get(request.Product.ID, nil)
	if err != nil {
		return nil, stripeProviderError(err)
	}
	if p.DefaultPrice == nil {
		return nil, &ProviderError{Provider: s.Name(), StatusCode: http.StatusBadRequest, Message: "product has no default price"}
	}

	successURL := request.SuccessURL
	if successURL == "" {
		successURL = s.SuccessURL
	}
	params := &stripe.CheckoutSessionParams{
		CancelURL:         stripe.String(successURL),
		ClientReferenceID: stripe.String(request.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.DefaultPrice.ID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: request.Metadata(),
		},
	}
	if request.Email != "" {
		params.CustomerEmail = stripe.String(request.Email)
	}
	for key, value := range request.Metadata() {
		params.AddMetadata(key, value)
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		log.Errorf("StripeCreateCheckoutSession: %v", err)
		return nil, stripeProviderError(err)
	}
	return &models.Checkout{ID: sess.ID, CheckoutURL: sess.URL, Status: string(sess.Status)}, nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		log.Errorf("Failed cancelling subscription %s: %v", subscriptionID, err)
		return nil, stripeProviderError(err)
	}
	return &models.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

func stripeProviderError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProviderError{Provider: config.BillingProviderStripe, StatusCode: stripeErr.HTTPStatusCode, Message: stripeErr.Msg}
	}
	return err
}
