package models

import "time"

// MongoUser is the user profile document. Plan, quota and billing fields are
// nullable in storage; a null decodes into the zero value.
type MongoUser struct {
	ID      string `bson:"_id" json:"userId"`
	Email   string `bson:"email" json:"email"`
	Name    string `bson:"name" json:"name"`
	Picture string `bson:"picture" json:"picture"`

	CurrentActivePlan PlanName     `bson:"current_active_plan" json:"current_active_plan"`
	PlanType          string       `bson:"plan_type" json:"plan_type"`
	ActiveProductID   string       `bson:"active_product_id" json:"active_product_id"`
	BillingCycle      BillingCycle `bson:"billing_cycle" json:"billing_cycle"`

	CharAllowed   int64 `bson:"char_allowed" json:"char_allowed"`
	CharRemaining int64 `bson:"char_remaining" json:"char_remaining"`

	VoiceCloneAllowed int64 `bson:"voice_clone_allowed" json:"voice_clone_allowed"`
	VoiceCloneUsed    int64 `bson:"voice_clone_used" json:"voice_clone_used"`

	CurrentPlanStartDate  *time.Time `bson:"current_plan_start_date" json:"current_plan_start_date"`
	CurrentPlanExpiryDate *time.Time `bson:"current_plan_expiry_date" json:"current_plan_expiry_date"`

	CreemCustomerID     string `bson:"creem_customer_id" json:"creem_customer_id"`
	CreemSubscriptionID string `bson:"creem_subscription_id" json:"creem_subscription_id"`

	IsAdmin  bool `bson:"is_admin" json:"is_admin"`
	IsActive bool `bson:"is_active" json:"is_active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the paid period elapsed before now. Profiles
// without an expiry date never expire.
func (u *MongoUser) IsExpired(now time.Time) bool {
	return u.CurrentPlanExpiryDate != nil && u.CurrentPlanExpiryDate.Before(now)
}

type MongoSubscription struct {
	ID             string       `bson:"_id" json:"id"`
	UserID         string       `bson:"user_id" json:"user_id"`
	Provider       string       `bson:"provider" json:"provider"`
	CustomerID     string       `bson:"customer_id" json:"customer_id"`
	SubscriptionID string       `bson:"subscription_id" json:"subscription_id"`
	ProductID      string       `bson:"product_id" json:"product_id"`
	PlanName       PlanName     `bson:"plan_name" json:"plan_name"`
	BillingCycle   BillingCycle `bson:"billing_cycle" json:"billing_cycle"`
	PeriodStart    time.Time    `bson:"period_start" json:"period_start"`
	PeriodEnd      time.Time    `bson:"period_end" json:"period_end"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
}

type MongoHistory struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	VoiceID     string    `bson:"voice_id" json:"voice_id"`
	ModelID     string    `bson:"model_id" json:"model_id"`
	Characters  int64     `bson:"characters" json:"characters"`
	TextPreview string    `bson:"text_preview" json:"text_preview"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

type MongoVoiceModel struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	VoiceID   string    `bson:"voice_id" json:"voice_id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// PlanGrant is the set of fields a paid subscription event writes onto a profile.
type PlanGrant struct {
	Plan              PlanName
	ProductID         string
	BillingCycle      BillingCycle
	CharAllowed       int64
	VoiceCloneAllowed int64
	CustomerID        string
	SubscriptionID    string
	StartDate         time.Time
	ExpiryDate        time.Time
}
