// Package profile owns the business profile a visitor configures and its
// persisted, versioned session state.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Personality tags accepted for an agent.
const (
	PersonalityFriendly     = "amigavel"
	PersonalityProfessional = "profissional"
	PersonalityFun          = "divertido"
	PersonalityTechnical    = "tecnico"
	PersonalitySales        = "vendedor"
)

// DefaultPersonality is applied to new profiles.
const DefaultPersonality = PersonalityFriendly

var personalities = map[string]struct{}{
	PersonalityFriendly:     {},
	PersonalityProfessional: {},
	PersonalityFun:          {},
	PersonalityTechnical:    {},
	PersonalitySales:        {},
}

// ValidPersonality reports whether p is a known personality tag.
func ValidPersonality(p string) bool {
	_, ok := personalities[p]
	return ok
}

const maxFieldLength = 4000

var ErrInvalidPatch = errors.New("profile: invalid patch")

// BusinessProfile describes the business the virtual employee represents.
type BusinessProfile struct {
	Name                string `json:"name"`
	Category            string `json:"category"`
	Description         string `json:"description"`
	Personality         string `json:"personality"`
	WelcomeMessage      string `json:"welcome_message"`
	Services            string `json:"services"`
	Hours               string `json:"hours"`
	Location            string `json:"location"`
	PaymentMethods      string `json:"payment_methods"`
	ContactPhone        string `json:"contact_phone"`
	HasDelivery         *bool  `json:"has_delivery,omitempty"`
	AcceptsReservations *bool  `json:"accepts_reservations,omitempty"`
}

// IsConfigured reports whether the profile has enough information to run a
// simulation: a name plus either a description or a services list.
func (p BusinessProfile) IsConfigured() bool {
	if strings.TrimSpace(p.Name) == "" {
		return false
	}
	return strings.TrimSpace(p.Description) != "" || strings.TrimSpace(p.Services) != ""
}

// CompletionPercent is the rounded share of filled fields.
func (p BusinessProfile) CompletionPercent() int {
	fields := []bool{
		p.Name != "",
		p.Category != "",
		p.Description != "",
		p.Personality != "",
		p.WelcomeMessage != "",
		p.Services != "",
		p.Hours != "",
		p.Location != "",
		p.PaymentMethods != "",
		p.ContactPhone != "",
		p.HasDelivery != nil && *p.HasDelivery,
		p.AcceptsReservations != nil && *p.AcceptsReservations,
	}
	filled := 0
	for _, f := range fields {
		if f {
			filled++
		}
	}
	return (filled*100 + len(fields)/2) / len(fields)
}

// Welcome returns the configured welcome message or a generated default.
func (p BusinessProfile) Welcome() string {
	if w := strings.TrimSpace(p.WelcomeMessage); w != "" {
		return w
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "nossa empresa"
	}
	return fmt.Sprintf("Olá! Bem-vindo(a) à %s. Como posso ajudar você hoje?", name)
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name                *string `json:"name,omitempty"`
	Category            *string `json:"category,omitempty"`
	Description         *string `json:"description,omitempty"`
	Personality         *string `json:"personality,omitempty"`
	WelcomeMessage      *string `json:"welcome_message,omitempty"`
	Services            *string `json:"services,omitempty"`
	Hours               *string `json:"hours,omitempty"`
	Location            *string `json:"location,omitempty"`
	PaymentMethods      *string `json:"payment_methods,omitempty"`
	ContactPhone        *string `json:"contact_phone,omitempty"`
	HasDelivery         *bool   `json:"has_delivery,omitempty"`
	AcceptsReservations *bool   `json:"accepts_reservations,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Validate checks field values without applying them.
func (p Patch) Validate() error {
	if p.Personality != nil && !ValidPersonality(*p.Personality) {
		return fmt.Errorf("%w: unknown personality %q", ErrInvalidPatch, *p.Personality)
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return fmt.Errorf("%w: category cannot be blank", ErrInvalidPatch)
	}
	for name, v := range p.strings() {
		if v != nil && utf8.RuneCountInString(*v) > maxFieldLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidPatch, name, maxFieldLength)
		}
	}
	return nil
}

func (p Patch) strings() map[string]*string {
	return map[string]*string{
		"name":            p.Name,
		"category":        p.Category,
		"description":     p.Description,
		"personality":     p.Personality,
		"welcome_message": p.WelcomeMessage,
		"services":        p.Services,
		"hours":           p.Hours,
		"location":        p.Location,
		"payment_methods": p.PaymentMethods,
		"contact_phone":   p.ContactPhone,
	}
}

// ApplyTo returns a copy of bp with the patch applied.
func (p Patch) ApplyTo(bp BusinessProfile) BusinessProfile {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&bp.Name, p.Name)
	set(&bp.Category, p.Category)
	set(&bp.Description, p.Description)
	set(&bp.Personality, p.Personality)
	set(&bp.WelcomeMessage, p.WelcomeMessage)
	set(&bp.Services, p.Services)
	set(&bp.Hours, p.Hours)
	set(&bp.Location, p.Location)
	set(&bp.PaymentMethods, p.PaymentMethods)
	set(&bp.ContactPhone, p.ContactPhone)
	if p.HasDelivery != nil {
		v := *p.HasDelivery
		bp.HasDelivery = &v
	}
	if p.AcceptsReservations != nil {
		v := *p.AcceptsReservations
		bp.AcceptsReservations = &v
	}
	return bp
}

var personalityInstructions = map[string]string{
	PersonalityFriendly:     "Seja muito amigável, caloroso e acolhedor. Use uma linguagem descontraída e sempre demonstre interesse genuíno.",
	PersonalityProfessional: "Mantenha um tom profissional, formal e respeitoso. Seja claro e objetivo nas respostas.",
	PersonalityFun:          "Seja divertido, use emojis quando apropriado e mantenha uma conversa descontraída e alegre.",
	PersonalityTechnical:    "Seja direto, técnico e focado em informações precisas. Evite linguagem muito casual.",
	PersonalitySales:        "Seja persuasivo e focado em destacar benefícios. Conduza a conversa para fechar vendas ou agendamentos.",
}

// PersonalityInstruction returns the tone guidance for a personality tag,
// falling back to the default personality.
func PersonalityInstruction(tag string) string {
	if s, ok := personalityInstructions[tag]; ok {
		return s
	}
	return personalityInstructions[DefaultPersonality]
}
