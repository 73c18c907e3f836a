package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/tcbb-predictions/internal/domain"
)

// withNames joins player names. Must be called with st.mu held.
func (s *Store) withNames(m domain.Match) domain.Match {
	m = cloneMatch(m)
	m.Player1Name = s.st.players[m.Player1ID].Name
	m.Player2Name = s.st.players[m.Player2ID].Name
	return m
}

// Matches

func (s *Store) GetMatch(_ context.Context, matchID string) (*domain.Match, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("GetMatch"); err != nil {
		return nil, err
	}
	m, ok := s.st.matches[matchID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	m = s.withNames(m)
	return &m, nil
}

func (s *Store) ListMatches(_ context.Context) ([]domain.Match, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("ListMatches"); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(s.st.matches))
	for _, m := range s.st.matches {
		matches = append(matches, s.withNames(m))
	}
	slices.SortFunc(matches, func(a, b domain.Match) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return matches, nil
}

func (s *Store) CreateMatch(_ context.Context, match *domain.Match) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("CreateMatch"); err != nil {
		return err
	}
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	s.st.matches[match.ID] = cloneMatch(*match)
	return nil
}

func (s *Store) SaveMatchResult(_ context.Context, match *domain.Match) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("SaveMatchResult"); err != nil {
		return err
	}
	existing, ok := s.st.matches[match.ID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	existing.Status = match.Status
	existing.WinnerID = match.WinnerID
	existing.SetScores = slices.Clone(match.SetScores)
	existing.HadTiebreak = match.HadTiebreak
	existing.DurationMinutes = match.DurationMinutes
	existing.FinishedAt = match.FinishedAt
	existing.UpdatedAt = match.UpdatedAt
	s.st.matches[match.ID] = cloneMatch(existing)
	return nil
}

func (s *Store) DeleteMatch(_ context.Context, matchID string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("DeleteMatch"); err != nil {
		return err
	}
	if _, ok := s.st.matches[matchID]; !ok {
		return domain.ErrMatchNotFound
	}
	delete(s.st.matches, matchID)
	return nil
}

func (s *Store) FinishedFinals(_ context.Context) (domain.FinalSet, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault("FinishedFinals"); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(s.st.matches))
	for _, m := range s.st.matches {
		matches = append(matches, m)
	}
	return domain.FinalsFrom(matches), nil
}

// Predictions

func (s *Store) listPredictions(op string, keep func(domain.Prediction) bool) ([]domain.Prediction, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault(op); err != nil {
		return nil, err
	}
	var out []domain.Prediction
	for _, p := range s.st.predictions {
		if keep(p) {
			out = append(out, clonePrediction(p))
		}
	}
	slices.SortFunc(out, func(a, b domain.Prediction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListPredictions(_ context.Context) ([]domain.Prediction, error) {
	return s.listPredictions("ListPredictions", func(domain.Prediction) bool { return true })
}

func (s *Store) ListPredictionsByMatch(_ context.Context, matchID string) ([]domain.Prediction, error) {
	return s.listPredictions("ListPredictionsByMatch", func(p domain.Prediction) bool { return p.MatchID == matchID })
}

func (s *Store) ListPredictionsByUser(_ context.Context, userID string) ([]domain.Prediction, error) {
	return s.listPredictions("ListPredictionsByUser", func(p domain.Prediction) bool { return p.UserID == userID })
}

// UpsertPrediction keeps one row per (user, match); an existing row keeps its id and creation time.
func (s *Store) UpsertPrediction(_ context.Context, prediction *domain.Prediction) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("UpsertPrediction"); err != nil {
		return err
	}
	for id, existing := range s.st.predictions {
		if existing.UserID == prediction.UserID && existing.MatchID == prediction.MatchID {
			prediction.ID = id
			prediction.CreatedAt = existing.CreatedAt
			break
		}
	}
	if prediction.ID == "" {
		prediction.ID = uuid.NewString()
	}
	s.st.predictions[prediction.ID] = clonePrediction(*prediction)
	return nil
}

func (s *Store) SetPredictionPoints(_ context.Context, predictionID string, points int) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("SetPredictionPoints"); err != nil {
		return err
	}
	p, ok := s.st.predictions[predictionID]
	if !ok {
		return domain.ErrInvalidRequest
	}
	p.PointsEarned = points
	s.st.predictions[predictionID] = p
	return nil
}

func (s *Store) DeletePredictionsByMatch(_ context.Context, matchID string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("DeletePredictionsByMatch"); err != nil {
		return err
	}
	for id, p := range s.st.predictions {
		if p.MatchID == matchID {
			delete(s.st.predictions, id)
		}
	}
	return nil
}

// Tournament bets

func (s *Store) listBets(op string, keep func(domain.TournamentBet) bool) ([]domain.TournamentBet, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if err := s.fault(op); err != nil {
		return nil, err
	}
	var out []domain.TournamentBet
	for _, b := range s.st.bets {
		if keep(b) {
			b.PlayerName = s.st.players[b.PlayerID].Name
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.TournamentBet) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListBets(_ context.Context) ([]domain.TournamentBet, error) {
	return s.listBets("ListBets", func(domain.TournamentBet) bool { return true })
}

func (s *Store) ListBetsByUser(_ context.Context, userID string) ([]domain.TournamentBet, error) {
	return s.listBets("ListBetsByUser", func(b domain.TournamentBet) bool { return b.UserID == userID })
}

// ListBetsByCategory returns bets of category; when types is non-empty only those types.
func (s *Store) ListBetsByCategory(_ context.Context, category domain.Category, types ...domain.BetType) ([]domain.TournamentBet, error) {
	return s.listBets("ListBetsByCategory", func(b domain.TournamentBet) bool {
		return b.Category == category && (len(types) == 0 || slices.Contains(types, b.Type))
	})
}

// UpsertBet keeps one row per (user, type, category).
func (s *Store) UpsertBet(_ context.Context, bet *domain.TournamentBet) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("UpsertBet"); err != nil {
		return err
	}
	for id, existing := range s.st.bets {
		if existing.UserID == bet.UserID && existing.Type == bet.Type && existing.Category == bet.Category {
			bet.ID = id
			bet.CreatedAt = existing.CreatedAt
			break
		}
	}
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	stored := *bet
	stored.PlayerName = ""
	s.st.bets[bet.ID] = stored
	return nil
}

func (s *Store) SetBetPoints(_ context.Context, betID string, points int) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fault("SetBetPoints"); err != nil {
		return err
	}
	b, ok := s.st.bets[betID]
	if !ok {
		return domain.ErrInvalidRequest
	}
	b.PointsEarned = points
	s.st.bets[betID] = b
	return nil
}
