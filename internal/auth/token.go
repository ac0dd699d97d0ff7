// Package auth verifies the signed, time-windowed bearer tokens sent by the
// game client on mutating requests.
//
// A token is "<timestampMs>.<signatureHex>" where the signature is
// hex(sha1(secret + timestampMs + clientIdentifier + "\n" + ServiceTag)).
package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderClient        = "User-Agent"

	// ServiceTag is appended to every signed payload.
	ServiceTag = "escape"

	// FreshnessWindow bounds |now - timestamp| for an acceptable token.
	FreshnessWindow = 5 * time.Second

	bearerPrefix = "Bearer "
)

// Rejection reasons returned by Check.
var (
	ErrMissingHeader    = errors.New("missing_header")
	ErrMalformedToken   = errors.New("malformed_token")
	ErrStaleToken       = errors.New("stale_token")
	ErrSignatureInvalid = errors.New("bad_signature")
)

// Token is a parsed credential. It only lives for one authentication check.
type Token struct {
	TimestampMs  int64
	SignatureHex string
}

// Verify reports whether headers carry a fresh token signed with secret.
func Verify(headers http.Header, now time.Time, secret string) bool {
	return Check(headers, now, secret) == nil
}

// Check is Verify with the rejection reason.
func Check(headers http.Header, now time.Time, secret string) error {
	authorizationValue, hasAuthorization := headerValue(headers, HeaderAuthorization)
	clientIdentifier, hasClient := headerValue(headers, HeaderClient)
	if !hasAuthorization || !hasClient {
		return ErrMissingHeader
	}

	parsedToken, parseError := ParseToken(parseBearer(authorizationValue))
	if parseError != nil {
		return parseError
	}

	if !withinWindow(parsedToken.TimestampMs, now) {
		return ErrStaleToken
	}

	providedSignature, decodeError := hex.DecodeString(parsedToken.SignatureHex)
	if decodeError != nil {
		return ErrSignatureInvalid
	}
	expectedSignature := signatureBytes(secret, parsedToken.TimestampMs, clientIdentifier)
	if subtle.ConstantTimeCompare(providedSignature, expectedSignature) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// ParseToken splits "<timestampMs>.<signatureHex>".
func ParseToken(rawToken string) (Token, error) {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Token{}, ErrMalformedToken
	}
	timestampMs, parseTimestampError := strconv.ParseInt(parts[0], 10, 64)
	if parseTimestampError != nil {
		return Token{}, ErrMalformedToken
	}
	return Token{TimestampMs: timestampMs, SignatureHex: parts[1]}, nil
}

// Sign returns the hex signature the server expects for timestampMs and clientIdentifier.
func Sign(secret string, timestampMs int64, clientIdentifier string) string {
	return hex.EncodeToString(signatureBytes(secret, timestampMs, clientIdentifier))
}

// BearerToken returns a complete Authorization header value.
func BearerToken(secret string, timestampMs int64, clientIdentifier string) string {
	return bearerPrefix + strconv.FormatInt(timestampMs, 10) + "." + Sign(secret, timestampMs, clientIdentifier)
}

// BearerCredential returns the token part of an Authorization header value, or "".
func BearerCredential(headers http.Header) string {
	authorizationValue, _ := headerValue(headers, HeaderAuthorization)
	return parseBearer(authorizationValue)
}

func signatureBytes(secret string, timestampMs int64, clientIdentifier string) []byte {
	digest := sha1.Sum([]byte(secret + strconv.FormatInt(timestampMs, 10) + clientIdentifier + "\n" + ServiceTag))
	return digest[:]
}

func withinWindow(timestampMs int64, now time.Time) bool {
	nowMs := now.UnixMilli()
	windowMs := FreshnessWindow.Milliseconds()
	return timestampMs >= nowMs-windowMs && timestampMs <= nowMs+windowMs
}

func parseBearer(authorizationHeaderValue string) string {
	if !strings.HasPrefix(authorizationHeaderValue, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorizationHeaderValue, bearerPrefix))
}

// headerValue looks a header up case-insensitively, including maps that were
// built by hand and never canonicalized.
func headerValue(headers http.Header, name string) (string, bool) {
	if values, found := headers[http.CanonicalHeaderKey(name)]; found && len(values) > 0 {
		return values[0], true
	}
	for key, values := range headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}
