package models

// Checkout is a hosted checkout session created by a billing provider.
type Checkout struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

// ProviderSubscription is what a billing provider returns after a cancel.
type ProviderSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  string `json:"current_period_end_date,omitempty"`
}
