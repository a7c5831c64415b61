package payments

import (
	"context"
	"fmt"
	"voxa/m/v2/app/models"
)

// Provider is the billing backend used for checkout and cancellation.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, request CheckoutRequest) (*models.Checkout, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error)
}

var BillingProvider Provider

type CheckoutRequest struct {
	UserID       string
	Email        string
	Product      models.Product
	BillingCycle models.BillingCycle
	SuccessURL   string
}

func (r CheckoutRequest) Metadata() map[string]string {
	return map[string]string{
		models.MetadataUserID:       r.UserID,
		models.MetadataPlanName:     string(r.Product.Plan),
		models.MetadataBillingCycle: string(r.BillingCycle),
	}
}

// ProviderError is a non-2xx answer from the billing provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
