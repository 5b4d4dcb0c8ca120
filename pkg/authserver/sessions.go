package authserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingSession identifies a user still progressing through login
// (spec §3).
type pendingSession struct {
	SessionID            string
	ClientID             string
	ClientName           string
	RedirectURI          string
	State                string
	CodeChallenge        string
	CodeChallengeMethod  string
	Scope                string
	ProviderID            string // set once a redirect provider is chosen
	CreatedAt            time.Time
}

// sessionCache is the process-local, mutex-guarded map of pending login
// sessions, evicted after SessionTTL. Grounded on the teacher's
// StateManager (pkg/oauth/state.go): generate-on-create, delete-on-use,
// single-use by construction.
type sessionCache struct {
	mu       sync.Mutex
	sessions map[string]*pendingSession
	stopCh   chan struct{}
}

func newSessionCache() *sessionCache {
	c := &sessionCache{sessions: make(map[string]*pendingSession), stopCh: make(chan struct{})}
	go c.sweepLoop()
	return c
}

func (c *sessionCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *sessionCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, s := range c.sessions {
		if now.Sub(s.CreatedAt) > SessionTTL {
			delete(c.sessions, id)
		}
	}
}

func (c *sessionCache) stop() { close(c.stopCh) }

func (c *sessionCache) create(s *pendingSession) *pendingSession {
	s.SessionID = uuid.NewString()
	s.CreatedAt = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.SessionID] = s
	return s
}

// get returns the session, or false if it is unknown or has expired
// (deleting it in the latter case).
func (c *sessionCache) get(id string) (*pendingSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Since(s.CreatedAt) > SessionTTL {
		delete(c.sessions, id)
		return nil, false
	}
	return s, true
}

func (c *sessionCache) setProvider(id, providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		s.ProviderID = providerID
	}
}

func (c *sessionCache) delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// authCode is the transient authorization-code record (spec §3).
type authCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
	UserID              string
	ExpiresAt           time.Time
}

// codeCache is the process-local, mutex-guarded map of outstanding
// authorization codes. Single-use: exchange or expiry destroys the entry.
type codeCache struct {
	mu     sync.Mutex
	codes  map[string]*authCode
	stopCh chan struct{}
}

func newCodeCache() *codeCache {
	c := &codeCache{codes: make(map[string]*authCode), stopCh: make(chan struct{})}
	go c.sweepLoop()
	return c
}

func (c *codeCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *codeCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for code, ac := range c.codes {
		if now.After(ac.ExpiresAt) {
			delete(c.codes, code)
		}
	}
}

func (c *codeCache) stop() { close(c.stopCh) }

func (c *codeCache) store(ac *authCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[ac.Code] = ac
}

// take returns and deletes the code if present and unexpired (single-use).
func (c *codeCache) take(code string) (*authCode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.codes[code]
	if !ok {
		return nil, false
	}
	delete(c.codes, code)
	if time.Now().After(ac.ExpiresAt) {
		return nil, false
	}
	return ac, true
}
