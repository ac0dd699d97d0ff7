package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
)

const (
	headerContentType = "Content-Type"
	headerRequestID   = "X-Request-ID"
	contentTypeJSON   = "application/json"
)

// statusEnvelope is the body of every error and preflight response.
type statusEnvelope struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func writeJSON(httpResponseWriter http.ResponseWriter, statusCode int, payload any) {
	encoded, encodeError := json.Marshal(payload)
	if encodeError != nil {
		statusCode = http.StatusInternalServerError
		encoded, _ = json.Marshal(statusEnvelope{StatusCode: statusCode, Message: "internal error"})
	}
	httpResponseWriter.Header().Set(headerContentType, contentTypeJSON)
	httpResponseWriter.WriteHeader(statusCode)
	_, _ = httpResponseWriter.Write(encoded)
}

func writeStatus(httpResponseWriter http.ResponseWriter, statusCode int, message string) {
	writeJSON(httpResponseWriter, statusCode, statusEnvelope{StatusCode: statusCode, Message: message})
}

// writeError renders err as the status envelope. Only the coded message
// reaches the client; server-side failures are logged with their cause.
func writeError(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, logger *slog.Logger, err error) {
	coded := apperr.From(err)
	statusCode := coded.Code.HTTPStatus()
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			"code", string(coded.Code),
			"error", err,
			"method", httpRequest.Method,
			"path", httpRequest.URL.Path,
			"request_id", requestIDFrom(httpRequest.Context()),
		)
	}
	writeStatus(httpResponseWriter, statusCode, coded.Message)
}
