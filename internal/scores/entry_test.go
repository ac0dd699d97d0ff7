package scores

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryAcceptsNumberAndNumericString(t *testing.T) {
	fromNumber := mustEntry(t, `{"name":"ada","time":3000}`)
	assert.Equal(t, "ada", fromNumber.Name)
	assert.Equal(t, int64(3000), fromNumber.Time)

	fromString := mustEntry(t, `{"name":"ada","time":" 4500 "}`)
	assert.Equal(t, int64(4500), fromString.Time)

	encoded, err := json.Marshal(fromString)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada","time":4500}`, string(encoded))
}

func TestParseEntryRejectsBadBodies(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`[]`,
		`"ada"`,
		`{}`,
		`{"name":"ada"}`,
		`{"time":100}`,
		`{"name":null,"time":100}`,
		`{"name":"","time":100}`,
		`{"name":"   ","time":100}`,
		`{"name":42,"time":100}`,
		`{"name":"ada","time":null}`,
		`{"name":"ada","time":"fast"}`,
		`{"name":"ada","time":""}`,
		`{"name":"ada","time":-1}`,
		`{"name":"ada","time":"-20"}`,
		`{"name":"ada","time":12.5}`,
		`{"name":"ada","time":1e3}`,
		`{"name":"ada","time":true}`,
		`{"name":"ada","time":{"ms":1}}`,
		`{"name":"ada","time":99999999999999999999}`,
	}
	for _, body := range bodies {
		_, err := ParseEntry([]byte(body), "application/json")
		assert.ErrorIs(t, err, ErrInvalidData, body)
	}
}

func TestParseEntryPreservesExtraFields(t *testing.T) {
	entry := mustEntry(t, `{"name":"ada","time":"1200","platform":"switch","meta":{"deaths":3}}`)
	assert.Equal(t, "switch", entry.Extra("platform"))
	assert.Equal(t, "", entry.Extra("missing"))

	encoded, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada","time":1200,"platform":"switch","meta":{"deaths":3}}`, string(encoded))

	var decoded ScoreEntry
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, entry.Name, decoded.Name)
	assert.Equal(t, entry.Time, decoded.Time)
	assert.Equal(t, "switch", decoded.Extra("platform"))
}

func TestParseEntryAcceptsForms(t *testing.T) {
	entry, err := ParseEntry([]byte("name=ada&time=2500&level=7"), "application/x-www-form-urlencoded; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "ada", entry.Name)
	assert.Equal(t, int64(2500), entry.Time)
	assert.Equal(t, "7", entry.Extra("level"))

	_, err = ParseEntry([]byte("name=ada&time=soon"), "application/x-www-form-urlencoded")
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = ParseEntry([]byte("name=ada"), "application/x-www-form-urlencoded")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestParseEntryIgnoresUnknownContentType(t *testing.T) {
	entry, err := ParseEntry([]byte(`{"name":"ada","time":1}`), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Time)
}

func TestScoreEntryMarshalReflectsFieldChanges(t *testing.T) {
	entry := mustEntry(t, `{"name":"ada","time":10,"x":1}`)
	entry.Name = "lovelace"
	encoded, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"lovelace","time":10,"x":1}`, string(encoded))
}

func TestStoredEntriesDecodeWithoutRevalidation(t *testing.T) {
	stored := `[{"name":123,"time":3000},{"name":"","time":"10"},{"time":7.9,"level":2},"junk",{"name":"ada","time":"soon"}]`

	var board Leaderboard
	require.NoError(t, json.Unmarshal([]byte(stored), &board))
	require.Len(t, board, 5)
	assert.Equal(t, []string{"123", "", "", "", "ada"}, boardNames(board))
	assert.Equal(t, []int64{3000, 10, 7, 0, 0}, []int64{board[0].Time, board[1].Time, board[2].Time, board[3].Time, board[4].Time})

	encoded, err := json.Marshal(board)
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(encoded))
}

func TestSubmitRanksAmongLegacyEntries(t *testing.T) {
	var document Document
	require.NoError(t, json.Unmarshal([]byte(`{"counts":{"normal/main":50},"time_scores":{"normal":[{"name":123,"time":3000},{"name":"A","time":5000}]}}`), &document))
	document.Normalize()

	board, err := Submit(&document, "normal", mustEntry(t, `{"name":"B","time":4000}`))
	require.NoError(t, err)
	encoded, err := json.Marshal(board)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":123,"time":3000},{"name":"B","time":4000},{"name":"A","time":5000}]`, string(encoded))
	assert.Equal(t, int64(50), document.Counts["normal/main"])
}
