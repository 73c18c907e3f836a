package domain

import (
	"fmt"
	"strings"
)

// Category is one of the fixed tournament draws
type Category string

const (
	CategoryA           Category = "A"
	CategoryB           Category = "B"
	CategoryC           Category = "C"
	CategoryATP         Category = "ATP"
	CategoryRankingTCBB Category = "RANKING_TCBB"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryA, CategoryB, CategoryC, CategoryATP, CategoryRankingTCBB}

// ParseCategory converts s into a Category, rejecting unknown values.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", InvalidKind(ErrInvalidCategory, "category", fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryA, CategoryB, CategoryC, CategoryATP, CategoryRankingTCBB:
		return true
	}
	return false
}

// IsBracket reports whether c is played as an elimination draw ending in a FINAL.
func (c Category) IsBracket() bool {
	return c.Valid() && c != CategoryRankingTCBB
}

// Rounds returns the round labels allowed in c.
func (c Category) Rounds() []Round {
	if c == CategoryRankingTCBB {
		return rankingRounds
	}
	if c.IsBracket() {
		return bracketRounds
	}
	return nil
}

// AllowsRound reports whether r is a valid round label for c.
func (c Category) AllowsRound(r Round) bool {
	for _, allowed := range c.Rounds() {
		if allowed == r {
			return true
		}
	}
	return false
}

// Round is a static round label
type Round string

const (
	RoundFirst         Round = "FIRST_ROUND"
	RoundQuarterfinals Round = "QUARTERFINALS"
	RoundSemifinals    Round = "SEMIFINALS"
	RoundFinal         Round = "FINAL"

	Round1 Round = "ROUND_1"
	Round2 Round = "ROUND_2"
	Round3 Round = "ROUND_3"
	Round4 Round = "ROUND_4"
	Round5 Round = "ROUND_5"
	Round6 Round = "ROUND_6"
	Round7 Round = "ROUND_7"
	Round8 Round = "ROUND_8"
	Round9 Round = "ROUND_9"
)

var (
	bracketRounds = []Round{RoundFirst, RoundQuarterfinals, RoundSemifinals, RoundFinal}
	rankingRounds = []Round{Round1, Round2, Round3, Round4, Round5, Round6, Round7, Round8, Round9}
)

// ParseRound converts s into a Round valid for category c.
func ParseRound(c Category, s string) (Round, error) {
	r := Round(strings.ToUpper(strings.TrimSpace(s)))
	if !c.AllowsRound(r) {
		return "", InvalidKind(ErrInvalidRound, "round", fmt.Sprintf("round %q is not valid for category %s", s, c))
	}
	return r, nil
}

// MatchStatus represents the lifecycle state of a match
type MatchStatus string

const (
	MatchScheduled MatchStatus = "SCHEDULED"
	MatchFinished  MatchStatus = "FINISHED"
	MatchCancelled MatchStatus = "CANCELLED"
)

// WinnerSlot names one side of a match
type WinnerSlot string

const (
	SlotNone    WinnerSlot = ""
	SlotPlayer1 WinnerSlot = "player1"
	SlotPlayer2 WinnerSlot = "player2"
)

// Valid reports whether s names one of the two sides.
func (s WinnerSlot) Valid() bool {
	return s == SlotPlayer1 || s == SlotPlayer2
}

// ParseWinnerSlot converts s into a WinnerSlot. An empty string yields SlotNone.
func ParseWinnerSlot(s string) (WinnerSlot, error) {
	slot := WinnerSlot(strings.ToLower(strings.TrimSpace(s)))
	if slot == SlotNone || slot.Valid() {
		return slot, nil
	}
	return "", InvalidKind(ErrInvalidWinnerSlot, "winner", fmt.Sprintf("unknown winner slot %q", s))
}

// UnmarshalText accepts any casing of a slot name, so JSON input is
// normalised the same way categories and rounds are.
func (s *WinnerSlot) UnmarshalText(text []byte) error {
	slot, err := ParseWinnerSlot(string(text))
	if err != nil {
		return err
	}
	*s = slot
	return nil
}

// BetType is the kind of tournament-outcome bet
type BetType string

const (
	BetChampion        BetType = "CHAMPION"
	BetRunnerUp        BetType = "RUNNER_UP"
	BetSemifinalist    BetType = "SEMIFINALIST"
	BetQuarterfinalist BetType = "QUARTERFINALIST"
)

// ParseBetType converts s into a BetType, rejecting unknown values.
func ParseBetType(s string) (BetType, error) {
	t := BetType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case BetChampion, BetRunnerUp, BetSemifinalist, BetQuarterfinalist:
		return t, nil
	}
	return "", InvalidKind(ErrInvalidBetType, "type", fmt.Sprintf("unknown bet type %q", s))
}

// DecidedByFinal reports whether bets of type t are scored when the category final finishes.
func (t BetType) DecidedByFinal() bool {
	return t == BetChampion || t == BetRunnerUp
}

// Role distinguishes ranked participants from administrators
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)
