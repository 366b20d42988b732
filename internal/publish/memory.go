package publish

import (
	"context"
	"sync"
)

// MemoryRepository is used when DATABASE_URL is not set.
type MemoryRepository struct {
	mu     sync.RWMutex
	agents map[string]PublishedAgent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{agents: make(map[string]PublishedAgent)}
}

func (r *MemoryRepository) Upsert(_ context.Context, agent PublishedAgent) (PublishedAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.agents[agent.SessionID]; ok {
		agent.ID = prev.ID
		agent.PublishedAt = prev.PublishedAt
	}
	r.agents[agent.SessionID] = agent
	return agent, nil
}

func (r *MemoryRepository) GetBySession(_ context.Context, sessionID string) (PublishedAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[sessionID]
	if !ok {
		return PublishedAgent{}, ErrNotFound
	}
	return agent, nil
}
