package scores

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const contentTypeForm = "application/x-www-form-urlencoded"

// ScoreEntry is one leaderboard row. Fields other than name and time sent by
// the client are kept verbatim in raw and written back unchanged.
type ScoreEntry struct {
	Name string
	Time int64

	raw []byte
}

// NewScoreEntry builds an entry without extra fields.
func NewScoreEntry(name string, timeMs int64) ScoreEntry {
	return ScoreEntry{Name: name, Time: timeMs}
}

// Extra returns the value at a gjson path in the client-supplied object, or ""
// if absent.
func (entry ScoreEntry) Extra(path string) string {
	if entry.raw == nil {
		return ""
	}
	return gjson.GetBytes(entry.raw, path).String()
}

// MarshalJSON writes the stored object back, touching name and time only when
// they no longer match what the stored object decodes to.
func (entry ScoreEntry) MarshalJSON() ([]byte, error) {
	if entry.raw == nil {
		return json.Marshal(struct {
			Name string `json:"name"`
			Time int64  `json:"time"`
		}{Name: entry.Name, Time: entry.Time})
	}
	stored := gjson.ParseBytes(entry.raw)
	encoded := append([]byte(nil), entry.raw...)
	if !stored.IsObject() {
		return encoded, nil
	}

	if stored.Get("name").String() != entry.Name {
		var setNameError error
		if encoded, setNameError = sjson.SetBytes(encoded, "name", entry.Name); setNameError != nil {
			return nil, fmt.Errorf("encode score name: %w", setNameError)
		}
	}
	if storedTime(stored.Get("time")) != entry.Time {
		var setTimeError error
		if encoded, setTimeError = sjson.SetBytes(encoded, "time", entry.Time); setTimeError != nil {
			return nil, fmt.Errorf("encode score time: %w", setTimeError)
		}
	}
	return encoded, nil
}

// UnmarshalJSON decodes a stored entry. Stored rows are never re-validated:
// files written by earlier deployments may hold numeric or empty names and
// loosely typed times. The object is kept verbatim, Name is its name rendered
// as a string and Time is its time coerced to an integer for ordering.
func (entry *ScoreEntry) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("decode score entry: not valid json")
	}
	stored := gjson.ParseBytes(data)
	*entry = ScoreEntry{raw: append([]byte(nil), data...)}
	if stored.IsObject() {
		entry.Name = stored.Get("name").String()
		entry.Time = storedTime(stored.Get("time"))
	}
	return nil
}

// storedTime coerces a stored time the way the legacy service did: integers
// as-is, numeric strings parsed, fractions truncated, anything else 0.
func storedTime(field gjson.Result) int64 {
	switch field.Type {
	case gjson.Number:
		return field.Int()
	case gjson.String:
		digits := strings.TrimSpace(field.Str)
		if timeMs, parseError := strconv.ParseInt(digits, 10, 64); parseError == nil {
			return timeMs
		}
		if timeValue, parseError := strconv.ParseFloat(digits, 64); parseError == nil {
			return int64(timeValue)
		}
	}
	return 0
}

func (entry ScoreEntry) clone() ScoreEntry {
	if entry.raw != nil {
		entry.raw = append([]byte(nil), entry.raw...)
	}
	return entry
}

// ParseEntry validates a submitted request body and returns the entry to
// insert. JSON objects and url-encoded forms are accepted. name must be a
// non-empty string; time must be a non-negative integer or a string holding
// one. Anything else is ErrInvalidData.
func ParseEntry(body []byte, contentType string) (ScoreEntry, error) {
	objectBytes := body
	if isFormContent(contentType) {
		formBytes, formError := formToObject(body)
		if formError != nil {
			return ScoreEntry{}, ErrInvalidData
		}
		objectBytes = formBytes
	}
	entry, parseError := parseEntryObject(objectBytes)
	if parseError != nil {
		return ScoreEntry{}, ErrInvalidData
	}
	return entry, nil
}

func parseEntryObject(data []byte) (ScoreEntry, error) {
	if !gjson.ValidBytes(data) {
		return ScoreEntry{}, fmt.Errorf("not valid json")
	}
	document := gjson.ParseBytes(data)
	if !document.IsObject() {
		return ScoreEntry{}, fmt.Errorf("not a json object")
	}

	nameField := document.Get("name")
	if nameField.Type != gjson.String || strings.TrimSpace(nameField.Str) == "" {
		return ScoreEntry{}, fmt.Errorf("name must be a non-empty string")
	}

	timeMs, timeError := parseTimeField(document.Get("time"))
	if timeError != nil {
		return ScoreEntry{}, timeError
	}

	normalized, setError := sjson.SetBytes(append([]byte(nil), data...), "time", timeMs)
	if setError != nil {
		return ScoreEntry{}, fmt.Errorf("normalize time: %w", setError)
	}
	return ScoreEntry{Name: nameField.Str, Time: timeMs, raw: normalized}, nil
}

func parseTimeField(field gjson.Result) (int64, error) {
	var digits string
	switch field.Type {
	case gjson.Number:
		digits = field.Raw
	case gjson.String:
		digits = strings.TrimSpace(field.Str)
	default:
		return 0, fmt.Errorf("time must be a number")
	}
	timeMs, parseError := strconv.ParseInt(digits, 10, 64)
	if parseError != nil {
		return 0, fmt.Errorf("time %q is not an integer", digits)
	}
	if timeMs < 0 {
		return 0, fmt.Errorf("time %d is negative", timeMs)
	}
	return timeMs, nil
}

func isFormContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, parseError := mime.ParseMediaType(contentType)
	return parseError == nil && mediaType == contentTypeForm
}

func formToObject(body []byte) ([]byte, error) {
	values, parseError := url.ParseQuery(string(body))
	if parseError != nil {
		return nil, parseError
	}
	object := make(map[string]string, len(values))
	for key, fieldValues := range values {
		if len(fieldValues) > 0 {
			object[key] = fieldValues[0]
		}
	}
	return json.Marshal(object)
}
