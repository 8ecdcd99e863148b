package convo

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/parley0/parley/internal/log"
	"github.com/parley0/parley/internal/token"
)

// DefaultStaleAfter is the idle duration after which a conversation is
// discarded on next read.
const DefaultStaleAfter = 120 * time.Minute

// SeedFunc builds the fixed initial turn set for a user. It is invoked on
// first access and on every reset, so seeds may embed per-call values such
// as the current date.
type SeedFunc func(userID string) []Turn

// Config contains all required parameters for the Store.
type Config struct {
	Seed      SeedFunc        // required: initial turn set builder
	Estimator token.Estimator // required: token budget estimator
	Logger    log.Logger      // required

	// StaleAfter is the idle expiry threshold. Zero uses DefaultStaleAfter.
	StaleAfter time.Duration

	// Now overrides the clock, for tests. Nil uses time.Now.
	Now func() time.Time
}

// Store owns every user's conversation. It is safe for concurrent use;
// different users never block each other beyond the brief map lookup.
type Store struct {
	mu    sync.RWMutex
	users map[string]*history

	seed       SeedFunc
	est        token.Estimator
	staleAfter time.Duration
	now        func() time.Time
	logger     log.Logger
}

// history is one user's turn log with its own lock, so operations on
// different users proceed independently.
type history struct {
	mu    sync.Mutex
	turns []Turn
}

// New creates a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Seed == nil {
		return nil, errors.New("seed function is required")
	}
	if cfg.Estimator == nil {
		return nil, errors.New("estimator is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		users:      make(map[string]*history),
		seed:       cfg.Seed,
		est:        cfg.Estimator,
		staleAfter: staleAfter,
		now:        now,
		logger:     cfg.Logger,
	}, nil
}

// freshSeed builds a new seed set, stamping any turn without a timestamp so
// the staleness check sees the seed as current.
func (s *Store) freshSeed(userID string) []Turn {
	turns := s.seed(userID)
	now := s.now()
	for i := range turns {
		if turns[i].At.IsZero() {
			turns[i].At = now
		}
		turns[i].Kind = KindInitial
	}
	return turns
}

// get returns the user's history, installing the seed set on first access.
func (s *Store) get(userID string) *history {
	s.mu.RLock()
	h, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.users[userID]; ok {
		return h
	}
	h = &history{turns: s.freshSeed(userID)}
	s.users[userID] = h
	s.logger.Debug("conversation created", "user", userID, "seed_turns", len(h.turns))
	return h
}

// Append adds a turn to the user's log. The content must be non-empty after
// trimming; violations return ErrEmptyContent.
func (s *Store) Append(userID string, role Role, content string, kind Kind) error {
	if userID == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	h := s.get(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{
		Role:    role,
		Content: content,
		Kind:    kind,
		At:      s.now(),
	})
	return nil
}

// Reset truncates the user's conversation back to a fresh seed set.
func (s *Store) Reset(userID string) {
	h := s.get(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = s.freshSeed(userID)
	s.logger.Debug("conversation reset", "user", userID)
}

// History returns a copy of the user's turns, creating the conversation if
// needed. A conversation whose newest turn is older than the staleness
// threshold is reset before being returned: idle conversations self-expire
// on read, not via a background sweep.
func (s *Store) History(userID string) []Turn {
	h := s.get(userID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.turns); n > 0 {
		if idle := s.now().Sub(h.turns[n-1].At); idle > s.staleAfter {
			s.logger.Info("conversation stale, resetting", "user", userID, "idle", idle)
			h.turns = s.freshSeed(userID)
		}
	}

	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// TokenEstimate sums the estimator over every turn's content.
func (s *Store) TokenEstimate(userID string) int {
	h := s.get(userID)
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, t := range h.turns {
		total += s.est.Estimate(t.Content)
	}
	return total
}
