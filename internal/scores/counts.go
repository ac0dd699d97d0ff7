package scores

// CountResult is the payload for a single counter.
type CountResult struct {
	Type  CounterKey `json:"type"`
	Count int64      `json:"count"`
}

// Counts implements the counter read. With no mode and no submode it returns a
// copy of every counter; with a valid pair it returns that counter; any other
// combination, including a mode alone, is ErrInvalidRequest.
func Counts(document *Document, mode string, submode string) (any, error) {
	if mode == "" && submode == "" {
		allCounts := make(map[CounterKey]int64, len(document.Counts))
		for key, value := range document.Counts {
			allCounts[key] = value
		}
		return allCounts, nil
	}
	key, keyError := counterKey(mode, submode)
	if keyError != nil {
		return nil, keyError
	}
	return CountResult{Type: key, Count: document.Counts[key]}, nil
}

// Increment adds one play to the mode/submode counter. On error the document
// is unchanged.
func Increment(document *Document, mode string, submode string) (CountResult, error) {
	key, keyError := counterKey(mode, submode)
	if keyError != nil {
		return CountResult{}, keyError
	}
	if document.Counts == nil {
		document.Counts = make(map[CounterKey]int64)
	}
	document.Counts[key]++
	return CountResult{Type: key, Count: document.Counts[key]}, nil
}

func counterKey(mode string, submode string) (CounterKey, error) {
	parsedMode, modeValid := ParseMode(mode)
	parsedSubmode, submodeValid := ParseSubmode(submode)
	if !modeValid || !submodeValid {
		return "", ErrInvalidRequest
	}
	return NewCounterKey(parsedMode, parsedSubmode), nil
}
