// Package memstore is an in-memory domain.Repository. Transactions are
// serialized and roll back by restoring a snapshot, which makes it suitable
// for local runs and for tests that need to observe atomicity.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tcbb-predictions/internal/domain"
)

type state struct {
	mu          sync.RWMutex
	players     map[string]domain.Player
	users       map[string]domain.User
	matches     map[string]domain.Match
	predictions map[string]domain.Prediction
	bets        map[string]domain.TournamentBet
	faults      map[string]error
}

func newState() *state {
	return &state{
		players:     make(map[string]domain.Player),
		users:       make(map[string]domain.User),
		matches:     make(map[string]domain.Match),
		predictions: make(map[string]domain.Prediction),
		bets:        make(map[string]domain.TournamentBet),
		faults:      make(map[string]error),
	}
}

// copyInto replaces dst's rows with deep copies of s's rows. Faults are kept.
func (s *state) copyInto(dst *state) {
	dst.players = cloneMap(s.players, func(p domain.Player) domain.Player { return p })
	dst.users = cloneMap(s.users, func(u domain.User) domain.User { return u })
	dst.matches = cloneMap(s.matches, cloneMatch)
	dst.predictions = cloneMap(s.predictions, clonePrediction)
	dst.bets = cloneMap(s.bets, func(b domain.TournamentBet) domain.TournamentBet { return b })
}

func cloneMap[V any](m map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneMatch(m domain.Match) domain.Match {
	m.SetScores = slices.Clone(m.SetScores)
	if m.DurationMinutes != nil {
		d := *m.DurationMinutes
		m.DurationMinutes = &d
	}
	return m
}

func clonePrediction(p domain.Prediction) domain.Prediction {
	p.SetScores = slices.Clone(p.SetScores)
	return p
}

// Store implements domain.Repository in memory
type Store struct {
	st   *state
	txMu *sync.Mutex
	inTx bool
}

// New creates an empty store
func New() *Store {
	return &Store{st: newState(), txMu: &sync.Mutex{}}
}

var _ domain.Repository = (*Store)(nil)

// InTx runs fn against a transactional view. Any error restores the state
// as it was before fn started.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := newState()
	s.st.mu.RLock()
	s.st.copyInto(snapshot)
	s.st.mu.RUnlock()

	tx := &Store{st: s.st, txMu: s.txMu, inTx: true}
	if err := fn(tx); err != nil {
		s.st.mu.Lock()
		snapshot.copyInto(s.st)
		s.st.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot runs fn while no transaction is in flight.
func (s *Store) Snapshot(ctx context.Context, fn func(view domain.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(&Store{st: s.st, txMu: s.txMu, inTx: true})
}

// FailOn makes every later call of op return err. A nil err clears the fault.
func (s *Store) FailOn(op string, err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err == nil {
		delete(s.st.faults, op)
		return
	}
	s.st.faults[op] = err
}

// fault must be called with st.mu held.
func (s *Store) fault(op string) error {
	if err, ok := s.st.faults[op]; ok {
		return fmt.Errorf("memstore.%s: %w", op, err)
	}
	return nil
}

// AddUser inserts a user. Accounts are owned by the authentication layer,
// so this exists for local runs and tests only.
func (s *Store) AddUser(_ context.Context, user *domain.User) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleParticipant
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	s.st.users[user.ID] = *user
	return nil
}

// Players

func (s *Store) GetPlayer(_ context.Context, playerID string) (*domain.Player, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("GetPlayer"); err != nil {
		return nil, err
	}
	p, ok := s.st.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &p, nil
}

func (s *Store) FindPlayerByName(_ context.Context, name string) (*domain.Player, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("FindPlayerByName"); err != nil {
		return nil, err
	}
	for _, p := range s.st.players {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return &p, nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}

func (s *Store) CreatePlayer(_ context.Context, player *domain.Player) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("CreatePlayer"); err != nil {
		return err
	}
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	s.st.players[player.ID] = *player
	return nil
}

func (s *Store) RenamePlayer(_ context.Context, playerID, name string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("RenamePlayer"); err != nil {
		return err
	}
	p, ok := s.st.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Name = name
	s.st.players[playerID] = p
	return nil
}

// Users

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.st.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context, role domain.Role) ([]domain.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("ListUsers"); err != nil {
		return nil, err
	}
	var users []domain.User
	for _, u := range s.st.users {
		if role == "" || u.Role == role {
			users = append(users, u)
		}
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (s *Store) SetUserPoints(_ context.Context, userID string, points int) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("SetUserPoints"); err != nil {
		return err
	}
	u, ok := s.st.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Points = points
	u.UpdatedAt = time.Now()
	s.st.users[userID] = u
	return nil
}
