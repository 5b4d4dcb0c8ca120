package store

import (
	"context"
	"sync"
	"time"
)

// Memory is the ephemeral Store implementation: three in-process maps
// guarded by one shared mutex, with lazy expiry checked on Get. State is
// lost on process restart, including any dynamically-registered clients
// (spec §9, Open Question).
type Memory struct {
	mu      sync.Mutex
	clients map[string]Client
	access  map[string]Token
	refresh map[string]Token

	now func() time.Time
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		clients: make(map[string]Client),
		access:  make(map[string]Token),
		refresh: make(map[string]Token),
		now:     time.Now,
	}
}

func (m *Memory) GetClient(_ context.Context, clientID string) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) SaveClient(_ context.Context, c Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ClientID] = c
	return nil
}

func (m *Memory) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
	return nil
}

func (m *Memory) ListDynamicClients(_ context.Context) ([]Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Client
	for _, c := range m.clients {
		if c.IsDynamic {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetAccessToken(_ context.Context, tokenHash string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getLocked(m.access, tokenHash, m.now())
}

func (m *Memory) SaveAccessToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access[t.TokenHash] = t
	return nil
}

func (m *Memory) DeleteAccessToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.access, tokenHash)
	return nil
}

func (m *Memory) GetRefreshToken(_ context.Context, tokenHash string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getLocked(m.refresh, tokenHash, m.now())
}

func (m *Memory) SaveRefreshToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[t.TokenHash] = t
	return nil
}

func (m *Memory) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *Memory) RotateRefreshToken(_ context.Context, oldHash string, newToken Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, oldHash)
	m.refresh[newToken.TokenHash] = newToken
	return nil
}

func (m *Memory) CleanupExpired(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, v := range m.access {
		if v.Expired(now) {
			delete(m.access, k)
		}
	}
	for k, v := range m.refresh {
		if v.Expired(now) {
			delete(m.refresh, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func getLocked(tokens map[string]Token, hash string, now time.Time) (Token, error) {
	t, ok := tokens[hash]
	if !ok {
		return Token{}, ErrNotFound
	}
	if t.Expired(now) {
		delete(tokens, hash)
		return Token{}, ErrNotFound
	}
	return t, nil
}
