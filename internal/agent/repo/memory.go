package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/internal/agent/model"
)

type memorySession struct {
	messages   []*schema.Message
	escalation model.Escalation
}

// MemorySessionRepository keeps sessions in process memory. Sessions end with
// the websocket connection, so no expiry is applied.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*memorySession)}
}

func (r *MemorySessionRepository) session(id string) *memorySession {
	s, ok := r.sessions[id]
	if !ok {
		s = &memorySession{}
		r.sessions[id] = s
	}
	return s
}

func (r *MemorySessionRepository) AddMessages(_ context.Context, sessionID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session(sessionID)
	s.messages = append(s.messages, messages...)
	return nil
}

func (r *MemorySessionRepository) LoadHistory(_ context.Context, sessionID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := []*schema.Message{}
	if s, ok := r.sessions[sessionID]; ok {
		msgs = make([]*schema.Message, len(s.messages))
		copy(msgs, s.messages)
	}
	return &model.ConversationHistory{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemorySessionRepository) SaveEscalation(_ context.Context, sessionID string, escalation model.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session(sessionID).escalation = escalation
	return nil
}

func (r *MemorySessionRepository) LoadEscalation(_ context.Context, sessionID string) (model.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s.escalation, nil
	}
	return model.Escalation{}, nil
}

func (r *MemorySessionRepository) ClearSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
