// Package publish records agents that went live and tells their owners.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/profile"
)

var ErrNotFound = errors.New("publish: agent not found")

// PublishedAgent is a configured agent attached to a WhatsApp number.
type PublishedAgent struct {
	ID             uuid.UUID               `json:"id"`
	SessionID      string                  `json:"session_id"`
	Plan           string                  `json:"plan"`
	Profile        profile.BusinessProfile `json:"profile"`
	WhatsAppNumber string                  `json:"whatsapp_number"`
	OwnerEmail     string                  `json:"owner_email,omitempty"`
	PublishedAt    time.Time               `json:"published_at"`
}

// Repository persists published agents. Publishing the same session twice
// replaces the earlier record.
type Repository interface {
	Upsert(ctx context.Context, agent PublishedAgent) (PublishedAgent, error)
	GetBySession(ctx context.Context, sessionID string) (PublishedAgent, error)
}
