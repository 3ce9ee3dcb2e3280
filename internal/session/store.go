// Package session keeps the server-side state of each open movie page: its form and its
// movie list. A session lives as long as its page; idle sessions are swept.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/movieform"
	"github.com/kuitang/movieform/internal/obs"
)

// Config bounds the session store.
type Config struct {
	TTL             time.Duration // idle time after which a session is dropped
	MaxSessions     int           // creating past this evicts the least recently used session
	CleanupInterval time.Duration
}

// DefaultConfig suits a single small instance.
var DefaultConfig = Config{
	TTL:             2 * time.Hour,
	MaxSessions:     10000,
	CleanupInterval: 5 * time.Minute,
}

// Session is one page's form and list. Every event runs through Do.
type Session struct {
	ID string

	mu   sync.Mutex
	form *movieform.Form
	list *catalog.List

	lastUsed time.Time // guarded by Store.mu
}

// Do runs fn with exclusive access to the session's form and list. Events on one page
// therefore run to completion in arrival order.
func (s *Session) Do(fn func(form *movieform.Form, list *catalog.List)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.form, s.list)
}

// Store holds live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seed     []movieform.Record
	config   Config
	onExpire func(id string)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStore creates a store whose sessions start from seed, and starts the sweeper.
// onExpire, if non-nil, is called with the id of every removed session.
func NewStore(config Config, seed []movieform.Record, onExpire func(id string)) *Store {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	st := &Store{
		sessions: make(map[string]*Session),
		seed:     append([]movieform.Record(nil), seed...),
		config:   config,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}

	st.wg.Add(1)
	go st.cleanupLoop()

	return st
}

// Create opens a session with an empty form and a copy of the seed catalog.
func (st *Store) Create() *Session {
	s := &Session{
		ID:       uuid.NewString(),
		form:     movieform.New(),
		list:     catalog.NewList(st.seed),
		lastUsed: time.Now(),
	}

	st.mu.Lock()
	var evicted string
	if st.config.MaxSessions > 0 && len(st.sessions) >= st.config.MaxSessions {
		evicted = st.evictOldestLocked()
	}
	st.sessions[s.ID] = s
	st.mu.Unlock()

	if evicted != "" {
		obs.Pkg("session").Info("session_evicted", "session_id", evicted)
		st.expired(evicted)
	}
	return s
}

// Get returns a live session and marks it used.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "session not found or expired; reload the page")
	}
	s.lastUsed = time.Now()
	return s, nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Cleanup removes sessions idle for longer than the TTL.
func (st *Store) Cleanup() {
	cutoff := time.Now().Add(-st.config.TTL)

	st.mu.Lock()
	var removed []string
	for id, s := range st.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(st.sessions, id)
			removed = append(removed, id)
		}
	}
	st.mu.Unlock()

	for _, id := range removed {
		st.expired(id)
	}
	if len(removed) > 0 {
		obs.Pkg("session").Debug("sessions_expired", "count", len(removed))
	}
}

// Stop ends the sweeper and waits for it.
func (st *Store) Stop() {
	close(st.stopCh)
	st.wg.Wait()
}

func (st *Store) evictOldestLocked() string {
	var oldestID string
	var oldest time.Time
	for id, s := range st.sessions {
		if oldestID == "" || s.lastUsed.Before(oldest) {
			oldestID = id
			oldest = s.lastUsed
		}
	}
	delete(st.sessions, oldestID)
	return oldestID
}

func (st *Store) expired(id string) {
	if st.onExpire != nil {
		st.onExpire(id)
	}
}

func (st *Store) cleanupLoop() {
	defer st.wg.Done()

	ticker := time.NewTicker(st.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.Cleanup()
		case <-st.stopCh:
			return
		}
	}
}
