// Package billing holds the subscription plans and the checkout flow that
// unlocks publishing.
package billing

import (
	"errors"
	"strings"
)

// PlanID identifies a subscription plan.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanStarter    PlanID = "starter"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

var (
	ErrUnknownPlan        = errors.New("billing: unknown plan")
	ErrPlanNotPurchasable = errors.New("billing: plan cannot be purchased")
)

// Plan is one entry of the price list.
type Plan struct {
	ID         PlanID   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	Interval   string   `json:"interval"`
	Features   []string `json:"features"`
	Popular    bool     `json:"popular,omitempty"`
}

// Purchasable reports whether the plan goes through checkout.
func (p Plan) Purchasable() bool {
	return p.ID != PlanFree
}

var plans = []Plan{
	{
		ID:       PlanFree,
		Name:     "Gratuito",
		Currency: "BRL",
		Interval: "month",
		Features: []string{"Teste limitado", "Suporte básico"},
	},
	{
		ID:         PlanStarter,
		Name:       "Plano Mensal",
		PriceCents: 4990,
		Currency:   "BRL",
		Interval:   "month",
		Features:   []string{"WhatsApp", "Suporte"},
	},
	{
		ID:         PlanPro,
		Name:       "Plano Anual",
		PriceCents: 49900,
		Currency:   "BRL",
		Interval:   "year",
		Features:   []string{"WhatsApp", "Analytics", "Suporte Priority"},
		Popular:    true,
	},
	{
		ID:         PlanEnterprise,
		Name:       "Empresarial",
		PriceCents: 149900,
		Currency:   "BRL",
		Interval:   "year",
		Features:   []string{"WhatsApp", "Analytics", "Suporte Priority", "Múltiplos números"},
	},
}

// Plans returns the price list in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}

// LookupPlan resolves a plan id, case-insensitively.
func LookupPlan(id string) (Plan, error) {
	want := PlanID(strings.ToLower(strings.TrimSpace(id)))
	for _, p := range plans {
		if p.ID == want {
			p.Features = append([]string(nil), p.Features...)
			return p, nil
		}
	}
	return Plan{}, ErrUnknownPlan
}
