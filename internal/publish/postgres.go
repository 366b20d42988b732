package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores agents in published_agents.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository accepts a *pgxpool.Pool or any compatible handle.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("publish: database handle required")
	}
	return &PostgresRepository{db: pool}
}

const upsertAgentSQL = `
INSERT INTO published_agents (id, session_id, plan, business_name, category, profile, whatsapp_number, owner_email, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO UPDATE SET
    plan = EXCLUDED.plan,
    business_name = EXCLUDED.business_name,
    category = EXCLUDED.category,
    profile = EXCLUDED.profile,
    whatsapp_number = EXCLUDED.whatsapp_number,
    owner_email = EXCLUDED.owner_email,
    updated_at = NOW()
RETURNING id::text, published_at`

func (r *PostgresRepository) Upsert(ctx context.Context, agent PublishedAgent) (PublishedAgent, error) {
	profileJSON, err := json.Marshal(agent.Profile)
	if err != nil {
		return PublishedAgent{}, fmt.Errorf("publish: encode profile: %w", err)
	}
	var id string
	err = r.db.QueryRow(ctx, upsertAgentSQL,
		agent.ID.String(),
		agent.SessionID,
		agent.Plan,
		agent.Profile.Name,
		agent.Profile.Category,
		profileJSON,
		agent.WhatsAppNumber,
		agent.OwnerEmail,
		agent.PublishedAt,
	).Scan(&id, &agent.PublishedAt)
	if err != nil {
		return PublishedAgent{}, fmt.Errorf("publish: upsert agent: %w", err)
	}
	if agent.ID, err = uuid.Parse(id); err != nil {
		return PublishedAgent{}, fmt.Errorf("publish: parse agent id: %w", err)
	}
	return agent, nil
}

const selectAgentSQL = `
SELECT id::text, session_id, plan, profile, whatsapp_number, owner_email, published_at
FROM published_agents
WHERE session_id = $1`

func (r *PostgresRepository) GetBySession(ctx context.Context, sessionID string) (PublishedAgent, error) {
	var (
		agent       PublishedAgent
		id          string
		profileJSON []byte
	)
	err := r.db.QueryRow(ctx, selectAgentSQL, sessionID).Scan(
		&id,
		&agent.SessionID,
		&agent.Plan,
		&profileJSON,
		&agent.WhatsAppNumber,
		&agent.OwnerEmail,
		&agent.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PublishedAgent{}, ErrNotFound
		}
		return PublishedAgent{}, fmt.Errorf("publish: load agent: %w", err)
	}
	if agent.ID, err = uuid.Parse(id); err != nil {
		return PublishedAgent{}, fmt.Errorf("publish: parse agent id: %w", err)
	}
	if err := json.Unmarshal(profileJSON, &agent.Profile); err != nil {
		return PublishedAgent{}, fmt.Errorf("publish: decode profile: %w", err)
	}
	return agent, nil
}
