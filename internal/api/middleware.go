package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	headerAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	headerAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	headerAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	headerAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	headerAccessControlMaxAge           = "Access-Control-Max-Age"

	headerAllowMethodsValue = "GET,POST,OPTIONS,DELETE,PUT"
	headerAllowHeadersValue = "DNT,X-CustomHeader,Keep-Alive,User-Agent,X-Requested-With,If-Modified-Since,Cache-Control,Authorization,Content-Type"
	headerMaxAgeValue       = "1728000"

	routeUnmatched = "unmatched"
	routePreflight = "preflight"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	routeLabelKey
)

// routeLabel is filled in by the matched route so the outer access log can
// report it.
type routeLabel struct {
	name string
}

func requestIDFrom(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func setRoute(ctx context.Context, name string) {
	if label, ok := ctx.Value(routeLabelKey).(*routeLabel); ok {
		label.name = name
	}
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (recorder *statusRecorder) WriteHeader(statusCode int) {
	if recorder.statusCode == 0 {
		recorder.statusCode = statusCode
	}
	recorder.ResponseWriter.WriteHeader(statusCode)
}

func (recorder *statusRecorder) Write(data []byte) (int, error) {
	if recorder.statusCode == 0 {
		recorder.statusCode = http.StatusOK
	}
	return recorder.ResponseWriter.Write(data)
}

func (recorder *statusRecorder) status() int {
	if recorder.statusCode == 0 {
		return http.StatusOK
	}
	return recorder.statusCode
}

// withRequestID reuses a well-formed incoming X-Request-ID or assigns a new
// one, and echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		requestID := httpRequest.Header.Get(headerRequestID)
		if _, parseError := uuid.Parse(requestID); parseError != nil {
			requestID = uuid.NewString()
		}
		httpResponseWriter.Header().Set(headerRequestID, requestID)
		ctx := context.WithValue(httpRequest.Context(), requestIDKey, requestID)
		next.ServeHTTP(httpResponseWriter, httpRequest.WithContext(ctx))
	})
}

// withAccessLog writes one log line and one metrics observation per request.
func withAccessLog(logger *slog.Logger, observer RequestObserver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		started := timeNow()
		label := &routeLabel{name: routeUnmatched}
		recorder := &statusRecorder{ResponseWriter: httpResponseWriter}
		ctx := context.WithValue(httpRequest.Context(), routeLabelKey, label)

		next.ServeHTTP(recorder, httpRequest.WithContext(ctx))

		elapsed := timeNow().Sub(started)
		logger.Info("request",
			"method", httpRequest.Method,
			"path", httpRequest.URL.Path,
			"route", label.name,
			"status", recorder.status(),
			"duration", elapsed,
			"request_id", requestIDFrom(httpRequest.Context()),
		)
		if observer != nil {
			observer.ObserveRequest(label.name, httpRequest.Method, recorder.status(), elapsed)
		}
	})
}

// withCORS sets the CORS headers on every response and answers every OPTIONS
// request itself, whatever the path.
func withCORS(allowOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		headers := httpResponseWriter.Header()
		headers.Set(headerAccessControlAllowOrigin, allowOrigin)
		headers.Set(headerAccessControlAllowMethods, headerAllowMethodsValue)
		headers.Set(headerAccessControlAllowHeaders, headerAllowHeadersValue)
		headers.Set(headerAccessControlAllowCredentials, "true")
		headers.Set(headerAccessControlMaxAge, headerMaxAgeValue)
		if allowOrigin != "*" {
			headers.Add("Vary", "Origin")
		}

		if httpRequest.Method == http.MethodOptions {
			setRoute(httpRequest.Context(), routePreflight)
			writeStatus(httpResponseWriter, http.StatusOK, "ok")
			return
		}
		next.ServeHTTP(httpResponseWriter, httpRequest)
	})
}

// tiny indirection to ease testing (can be stubbed)
var timeNow = func() time.Time { return time.Now() }
