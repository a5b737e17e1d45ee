package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const (
	memoryStoreMaxGrants  = 60000 // maximum number of pending grants
	memoryStoreMaxClients = 10000 // maximum number of registered clients
)

type memoryStore struct {
	maxGrants  int
	maxClients int
	timeout    time.Duration

	grants             map[grantKey]*Grant
	grantEvictionQueue []grantKey

	clients             map[string]*Client
	clientEvictionQueue []string

	mu sync.Mutex

	generateKey func() ([32]byte, error)
	nowFunc     func() time.Time
}

// NewMemoryStore returns a Store that keeps grants for timeout.
// Clients never expire, but the oldest are evicted once the maximum
// number of registrations is reached.
func NewMemoryStore(timeout time.Duration) *memoryStore {
	return &memoryStore{
		maxGrants:  memoryStoreMaxGrants,
		maxClients: memoryStoreMaxClients,
		timeout:    timeout,
		grants:     make(map[grantKey]*Grant),
		clients:    make(map[string]*Client),
	}
}

func (m *memoryStore) now() time.Time {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return time.Now()
}

func (m *memoryStore) StoreGrant(g *Grant) (string, error) {
	if size := g.size(); size > grantMaxSize {
		return "", fmt.Errorf("grant size exceeds maximum of %d bytes: %d", grantMaxSize, size)
	}

	m.mu.Lock()
	defer func() { m.collectGarbage(); m.mu.Unlock() }()

	for {
		generateKey := generateSecureCode
		if m.generateKey != nil {
			generateKey = m.generateKey
		}
		keyBytes, err := generateKey()
		if err != nil {
			return "", fmt.Errorf("failed to generate authorization code: %w", err)
		}
		key := grantKey(base64.RawURLEncoding.EncodeToString(keyBytes[:]))
		if _, ok := m.grants[key]; ok {
			continue
		}

		for len(m.grants) >= m.maxGrants {
			oldest := m.grantEvictionQueue[0]
			m.grantEvictionQueue = m.grantEvictionQueue[1:]
			delete(m.grants, oldest)
		}

		g.expiresAt = m.now().Add(m.timeout)
		m.grants[key] = g
		m.grantEvictionQueue = append(m.grantEvictionQueue, key)
		return string(key), nil
	}
}

// RetrieveGrant returns the grant for code and deletes it, so every
// authorization code can be redeemed at most once.
func (m *memoryStore) RetrieveGrant(code string) (*Grant, bool) {
	m.mu.Lock()
	g, ok := m.grants[grantKey(code)]
	delete(m.grants, grantKey(code))
	m.collectGarbage()
	m.mu.Unlock()

	if !ok || !m.now().Before(g.expiresAt) {
		return nil, false
	}
	return g, true
}

func (m *memoryStore) RegisterClient(c *Client) error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c.ClientID]; ok {
		return fmt.Errorf("client '%s' is already registered", c.ClientID)
	}
	for len(m.clients) >= m.maxClients {
		oldest := m.clientEvictionQueue[0]
		m.clientEvictionQueue = m.clientEvictionQueue[1:]
		delete(m.clients, oldest)
	}
	m.clients[c.ClientID] = c
	m.clientEvictionQueue = append(m.clientEvictionQueue, c.ClientID)
	return nil
}

func (m *memoryStore) LookupClient(clientID string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	return c, ok
}

func (m *memoryStore) collectGarbage() {
	now := m.now()
	var queue []grantKey
	for _, key := range m.grantEvictionQueue {
		g, ok := m.grants[key]
		if !ok {
			continue
		}
		if now.Before(g.expiresAt) {
			queue = append(queue, key)
		} else {
			delete(m.grants, key)
		}
	}
	m.grantEvictionQueue = queue
}

// generateSecureCode generates a random 32-byte key for use as an
// authorization code.
func generateSecureCode() ([32]byte, error) {
	var b [32]byte
	_, err := rand.Read(b[:])
	return b, err
}
