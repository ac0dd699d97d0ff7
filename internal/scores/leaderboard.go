package scores

// Scores returns a copy of the leaderboard for mode. An empty board is an
// empty, non-nil slice so it encodes as [].
func Scores(document *Document, mode string) (Leaderboard, error) {
	parsedMode, modeValid := ParseMode(mode)
	if !modeValid {
		return nil, ErrInvalidMode
	}
	board := document.TimeScores[parsedMode].clone()
	return board, nil
}

// Submit inserts entry into the mode's leaderboard, keeps it sorted by time
// (earlier submissions first among equal times) and drops everything past
// MaxLeaderboardEntries. It returns a copy of the resulting board.
func Submit(document *Document, mode string, entry ScoreEntry) (Leaderboard, error) {
	parsedMode, modeValid := ParseMode(mode)
	if !modeValid {
		return nil, ErrInvalidMode
	}
	if document.TimeScores == nil {
		document.TimeScores = make(map[Mode]Leaderboard, len(Modes))
	}
	board := append(document.TimeScores[parsedMode].clone(), entry.clone())
	document.TimeScores[parsedMode] = rank(board)
	return document.TimeScores[parsedMode].clone(), nil
}

// Clear empties every leaderboard. Counters are untouched.
func Clear(document *Document) {
	if document.TimeScores == nil {
		document.TimeScores = make(map[Mode]Leaderboard, len(Modes))
	}
	for _, mode := range Modes {
		document.TimeScores[mode] = Leaderboard{}
	}
}
