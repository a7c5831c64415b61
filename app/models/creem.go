package models

import (
	"encoding/json"
	"errors"
)

const (
	SubscriptionPaidEventType = "subscription.paid"

	MetadataUserID       = "user_id"
	MetadataPlanName     = "plan_name"
	MetadataBillingCycle = "billing_cycle"
)

// CreemWebhookPayload is the raw body Creem posts to the webhook.
type CreemWebhookPayload struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Type      string          `json:"type"`
	Object    json.RawMessage `json:"object"`
}

type CreemCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CreemProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreemSubscriptionObject struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           CreemCustomer     `json:"customer"`
	Product            CreemProduct      `json:"product"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart string            `json:"current_period_start_date"`
	CurrentPeriodEnd   string            `json:"current_period_end_date"`
}

// Event is one of the billing events the webhook knows about. Anything else
// decodes to IgnoredEvent.
type Event interface {
	EventID() string
	EventType() string
}

// SubscriptionPaidEvent is provider-neutral: Creem and Stripe both map into it.
type SubscriptionPaidEvent struct {
	ID             string
	Provider       string
	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
	ProductID      string
	PlanName       string
	BillingCycle   BillingCycle
}

func (e SubscriptionPaidEvent) EventID() string   { return e.ID }
func (e SubscriptionPaidEvent) EventType() string { return SubscriptionPaidEventType }

type IgnoredEvent struct {
	ID   string
	Type string
}

func (e IgnoredEvent) EventID() string   { return e.ID }
func (e IgnoredEvent) EventType() string { return e.Type }

var ErrMalformedEvent = errors.New("malformed webhook event")

// ParseCreemEvent decodes a Creem webhook body. The event type is read from
// eventType and falls back to type.
func ParseCreemEvent(body []byte) (Event, error) {
	var payload CreemWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	eventType := payload.EventType
	if eventType == "" {
		eventType = payload.Type
	}

	switch eventType {
	case SubscriptionPaidEventType:
		var object CreemSubscriptionObject
		if len(payload.Object) == 0 {
			return nil, errors.Join(ErrMalformedEvent, errors.New("missing object"))
		}
		if err := json.Unmarshal(payload.Object, &object); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		return SubscriptionPaidEvent{
			ID:             payload.ID,
			Provider:       "creem",
			CustomerEmail:  object.Customer.Email,
			CustomerID:     object.Customer.ID,
			SubscriptionID: object.ID,
			ProductID:      object.Product.ID,
			PlanName:       object.Metadata[MetadataPlanName],
			BillingCycle:   ParseBillingCycle(object.Metadata[MetadataBillingCycle]),
		}, nil
	default:
		return IgnoredEvent{ID: payload.ID, Type: eventType}, nil
	}
}
