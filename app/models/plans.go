package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type PlanName string

const (
	FreePlanName    PlanName = "free"
	StarterPlanName PlanName = "starter"
	ProPlanName     PlanName = "pro"
	TurboPlanName   PlanName = "turbo"
)

type BillingCycle string

const (
	MonthlyBillingCycle BillingCycle = "monthly"
	YearlyBillingCycle  BillingCycle = "yearly"
)

// FallbackCharacters is granted for paid products missing from the catalog.
const FallbackCharacters int64 = 1000

type Product struct {
	ID           string       `json:"id"`
	Plan         PlanName     `json:"plan"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	Characters   int64        `json:"characters"`
	VoiceClones  int64        `json:"voice_clones"`
}

// Plan limits for users who never paid.
var FreePlan = Product{
	Plan:        FreePlanName,
	Characters:  1000,
	VoiceClones: 0,
}

var DefaultProducts = map[string]Product{
	"prod_1308g86Vz0IIqbZgpPa9o4": {
		ID:           "prod_1308g86Vz0IIqbZgpPa9o4",
		Plan:         StarterPlanName,
		BillingCycle: MonthlyBillingCycle,
		Characters:   5000,
		VoiceClones:  1,
	},
}

// Catalog maps billing product ids to quota plans.
type Catalog map[string]Product

// NewCatalog returns the default products overlaid with entries from a JSON
// array, as found in the PRODUCT_CATALOG env.
func NewCatalog(overrides string) (Catalog, error) {
	catalog := Catalog{}
	for id, product := range DefaultProducts {
		catalog[id] = product
	}
	if overrides == "" {
		return catalog, nil
	}
	var products []Product
	if err := json.Unmarshal([]byte(overrides), &products); err != nil {
		return nil, fmt.Errorf("NewCatalog: failed to parse product catalog: %w", err)
	}
	for _, product := range products {
		if product.ID == "" {
			return nil, fmt.Errorf("NewCatalog: product without id: %+v", product)
		}
		catalog[product.ID] = product
	}
	return catalog, nil
}

// Lookup resolves a product id. Unknown products fall back to
// FallbackCharacters so a paid event never fails on catalog drift.
func (c Catalog) Lookup(productID string) (Product, bool) {
	product, ok := c[productID]
	if ok {
		return product, true
	}
	return Product{
		ID:         productID,
		Plan:       StarterPlanName,
		Characters: FallbackCharacters,
	}, false
}

// ParseBillingCycle defaults anything that isn't yearly to monthly.
func ParseBillingCycle(s string) BillingCycle {
	if BillingCycle(s) == YearlyBillingCycle {
		return YearlyBillingCycle
	}
	return MonthlyBillingCycle
}

// ExpiryFrom adds one billing period to start.
func (b BillingCycle) ExpiryFrom(start time.Time) time.Time {
	if b == YearlyBillingCycle {
		return start.AddDate(0, 12, 0)
	}
	return start.AddDate(0, 1, 0)
}
