// Package scores holds the persisted document and the pure operations that
// read and mutate its play counters and leaderboards. Nothing here touches the
// disk or checks credentials; callers load the document, hand it over by
// pointer and persist it afterwards.
package scores

import (
	"sort"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
)

// Mode is a top-level game variant.
type Mode string

// Submode is a play type within a mode.
type Submode string

const (
	ModeNormal Mode = "normal"
	ModeEncore Mode = "encore"

	SubmodeMain     Submode = "main"
	SubmodeSurvival Submode = "survival"
	SubmodeTime     Submode = "time"

	// MaxLeaderboardEntries caps every leaderboard.
	MaxLeaderboardEntries = 10
)

var (
	Modes    = []Mode{ModeNormal, ModeEncore}
	Submodes = []Submode{SubmodeMain, SubmodeSurvival, SubmodeTime}
)

var (
	ErrInvalidRequest = apperr.New(apperr.CodeInvalidRequest, "invalid request")
	ErrInvalidMode    = apperr.New(apperr.CodeInvalidRequest, "invalid mode")
	ErrInvalidData    = apperr.New(apperr.CodeInvalidRequest, "invalid data")
)

// ParseMode accepts only the known modes, case-sensitively.
func ParseMode(value string) (Mode, bool) {
	for _, mode := range Modes {
		if string(mode) == value {
			return mode, true
		}
	}
	return "", false
}

// ParseSubmode accepts only the known submodes, case-sensitively.
func ParseSubmode(value string) (Submode, bool) {
	for _, submode := range Submodes {
		if string(submode) == value {
			return submode, true
		}
	}
	return "", false
}

// CounterKey is the persisted "<mode>/<submode>" counter name.
type CounterKey string

func NewCounterKey(mode Mode, submode Submode) CounterKey {
	return CounterKey(string(mode) + "/" + string(submode))
}

// Leaderboard is sorted ascending by time and holds at most
// MaxLeaderboardEntries entries.
type Leaderboard []ScoreEntry

// Document is the single persisted unit. Field names match files written by
// earlier deployments.
type Document struct {
	Counts     map[CounterKey]int64 `json:"counts"`
	TimeScores map[Mode]Leaderboard `json:"time_scores"`
}

// NewDocument returns the zero document: every counter at 0 and both
// leaderboards empty.
func NewDocument() Document {
	document := Document{}
	document.Normalize()
	return document
}

// Normalize fills in missing counters and leaderboards and re-establishes the
// leaderboard ordering and size bound on documents edited outside the service.
// Unknown counter keys are left alone.
func (document *Document) Normalize() {
	if document.Counts == nil {
		document.Counts = make(map[CounterKey]int64, len(Modes)*len(Submodes))
	}
	for _, mode := range Modes {
		for _, submode := range Submodes {
			key := NewCounterKey(mode, submode)
			if _, found := document.Counts[key]; !found {
				document.Counts[key] = 0
			}
		}
	}

	if document.TimeScores == nil {
		document.TimeScores = make(map[Mode]Leaderboard, len(Modes))
	}
	for _, mode := range Modes {
		board := document.TimeScores[mode]
		if board == nil {
			board = Leaderboard{}
		}
		document.TimeScores[mode] = rank(board)
	}
}

func (board Leaderboard) clone() Leaderboard {
	cloned := make(Leaderboard, len(board))
	for index, entry := range board {
		cloned[index] = entry.clone()
	}
	return cloned
}

// rank stable-sorts board by time and truncates it to the cap.
func rank(board Leaderboard) Leaderboard {
	if len(board) > 1 {
		sort.SliceStable(board, func(left, right int) bool {
			return board[left].Time < board[right].Time
		})
	}
	if len(board) > MaxLeaderboardEntries {
		board = board[:MaxLeaderboardEntries]
	}
	return board
}
