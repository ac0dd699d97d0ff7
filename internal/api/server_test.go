package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/arcade"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/auth"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/store"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/telemetry"
)

const (
	testSecret = "api-test-secret"
	testClient = "EscapeGame/2.0 (test)"
)

var fixedNow = time.UnixMilli(1_760_000_000_000)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type observedRequest struct {
	route      string
	method     string
	statusCode int
}

type requestLog struct {
	mutex    sync.Mutex
	requests []observedRequest
}

func (log *requestLog) ObserveRequest(route string, method string, statusCode int, _ time.Duration) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.requests = append(log.requests, observedRequest{route: route, method: method, statusCode: statusCode})
}

type testServer struct {
	handler  http.Handler
	observed *requestLog
}

func newTestServer(t *testing.T, rateLimitPerMinute int) testServer {
	t.Helper()
	fileStore := store.New(filepath.Join(t.TempDir(), "data.json"), store.Options{Logger: discardLogger()})
	service := arcade.NewService(fileStore, arcade.Options{
		Secret: testSecret,
		Now:    func() time.Time { return fixedNow },
		Logger: discardLogger(),
	})
	observed := &requestLog{}
	server := NewServer(Options{
		Service:            service,
		Logger:             discardLogger(),
		Observer:           observed,
		MetricsHandler:     telemetry.NewMetrics().Handler(),
		RateLimitPerMinute: rateLimitPerMinute,
	})
	return testServer{handler: server.Handler(), observed: observed}
}

func (server testServer) do(t *testing.T, method string, target string, body string, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set(headerContentType, contentTypeJSON)
	}
	if signed {
		request.Header.Set(auth.HeaderAuthorization, auth.BearerToken(testSecret, fixedNow.UnixMilli(), testClient))
		request.Header.Set(auth.HeaderClient, testClient)
	}
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestCountEndpoints(t *testing.T) {
	server := newTestServer(t, 0)

	for range 3 {
		response := server.do(t, http.MethodPost, "/count/normal/main", "", true)
		require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	}

	response := server.do(t, http.MethodGet, "/count/normal/main", "", false)
	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"type":"normal/main","count":3}`, response.Body.String())
	assert.Equal(t, contentTypeJSON, response.Header().Get(headerContentType))

	response = server.do(t, http.MethodGet, "/count", "", false)
	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"normal/main":3,"normal/survival":0,"normal/time":0,"encore/main":0,"encore/survival":0,"encore/time":0}`, response.Body.String())
}

func TestCountModeAloneIsBadRequest(t *testing.T) {
	server := newTestServer(t, 0)
	response := server.do(t, http.MethodGet, "/count/normal", "", false)
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"invalid request"}`, response.Body.String())
}

func TestCountModeAloneIsBadRequestWhenStoreUnreadable(t *testing.T) {
	unreadable := store.New(t.TempDir(), store.Options{Logger: discardLogger()})
	service := arcade.NewService(unreadable, arcade.Options{Secret: testSecret, Logger: discardLogger()})
	handler := NewServer(Options{Service: service, Logger: discardLogger()}).Handler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/count/normal", nil))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"invalid request"}`, recorder.Body.String())

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/count/normal/main", nil))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestIncrementRejectsMissingToken(t *testing.T) {
	server := newTestServer(t, 0)
	response := server.do(t, http.MethodPost, "/count/normal/main", "", false)
	assert.Equal(t, http.StatusUnauthorized, response.Code)
	assert.JSONEq(t, `{"status_code":401,"message":"unauthorized"}`, response.Body.String())

	response = server.do(t, http.MethodGet, "/count/normal/main", "", false)
	assert.JSONEq(t, `{"type":"normal/main","count":0}`, response.Body.String())
}

func TestScoreEndpoints(t *testing.T) {
	server := newTestServer(t, 0)

	response := server.do(t, http.MethodPost, "/scores/normal", `{"name":"A","time":5000}`, true)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	response = server.do(t, http.MethodPost, "/scores/normal", `{"name":"B","time":3000,"platform":"web"}`, true)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	assert.JSONEq(t, `[{"name":"B","time":3000,"platform":"web"},{"name":"A","time":5000}]`, response.Body.String())

	response = server.do(t, http.MethodGet, "/scores/normal", "", false)
	assert.JSONEq(t, `[{"name":"B","time":3000,"platform":"web"},{"name":"A","time":5000}]`, response.Body.String())

	response = server.do(t, http.MethodGet, "/scores/encore", "", false)
	assert.Equal(t, "[]", response.Body.String())
}

func TestSubmitScoreFormBody(t *testing.T) {
	server := newTestServer(t, 0)
	request := httptest.NewRequest(http.MethodPost, "/scores/encore", strings.NewReader("name=Zed&time=4200"))
	request.Header.Set(headerContentType, "application/x-www-form-urlencoded")
	request.Header.Set(auth.HeaderAuthorization, auth.BearerToken(testSecret, fixedNow.UnixMilli(), testClient))
	request.Header.Set(auth.HeaderClient, testClient)
	recorder := httptest.NewRecorder()

	server.handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.JSONEq(t, `[{"name":"Zed","time":4200}]`, recorder.Body.String())
}

func TestSubmitScoreValidation(t *testing.T) {
	server := newTestServer(t, 0)

	response := server.do(t, http.MethodPost, "/scores/hard", `{"name":"A","time":1}`, true)
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"invalid mode"}`, response.Body.String())

	response = server.do(t, http.MethodPost, "/scores/normal", `{"name":"A","time":"fast"}`, true)
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"invalid data"}`, response.Body.String())

	response = server.do(t, http.MethodPost, "/scores/normal", `{"name":"A","time":1`+strings.Repeat(" ", maxRequestBodyBytes)+`}`, true)
	assert.Equal(t, http.StatusBadRequest, response.Code)

	response = server.do(t, http.MethodGet, "/scores/normal", "", false)
	assert.Equal(t, "[]", response.Body.String())
}

func TestGetScoresUnknownMode(t *testing.T) {
	server := newTestServer(t, 0)
	response := server.do(t, http.MethodGet, "/scores/hard", "", false)
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"invalid mode"}`, response.Body.String())
}

func TestClearScores(t *testing.T) {
	server := newTestServer(t, 0)
	server.do(t, http.MethodPost, "/scores/normal", `{"name":"A","time":1}`, true)
	server.do(t, http.MethodPost, "/scores/encore", `{"name":"B","time":2}`, true)

	response := server.do(t, http.MethodDelete, "/scores", "", false)
	assert.Equal(t, http.StatusUnauthorized, response.Code)

	response = server.do(t, http.MethodDelete, "/scores", "", true)
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Empty(t, response.Body.String())

	for _, mode := range []string{"normal", "encore"} {
		response = server.do(t, http.MethodGet, "/scores/"+mode, "", false)
		assert.Equal(t, "[]", response.Body.String())
	}
}

func TestPreflightOnAnyPath(t *testing.T) {
	server := newTestServer(t, 0)
	for _, target := range []string{"/count/normal/main", "/nowhere/at/all", "/"} {
		response := server.do(t, http.MethodOptions, target, "", false)
		assert.Equal(t, http.StatusOK, response.Code)
		assert.JSONEq(t, `{"status_code":200,"message":"ok"}`, response.Body.String())
		assert.Equal(t, "*", response.Header().Get(headerAccessControlAllowOrigin))
		assert.Equal(t, headerAllowMethodsValue, response.Header().Get(headerAccessControlAllowMethods))
	}
}

func TestCORSAndRequestIDOnEveryResponse(t *testing.T) {
	server := newTestServer(t, 0)
	for _, target := range []string{"/count", "/missing"} {
		response := server.do(t, http.MethodGet, target, "", false)
		assert.Equal(t, "*", response.Header().Get(headerAccessControlAllowOrigin))
		assert.Equal(t, "true", response.Header().Get(headerAccessControlAllowCredentials))
		assert.Equal(t, headerMaxAgeValue, response.Header().Get(headerAccessControlMaxAge))
		assert.NotEmpty(t, response.Header().Get(headerRequestID))
	}
}

func TestIncomingRequestIDIsKept(t *testing.T) {
	server := newTestServer(t, 0)
	const requestID = "0b6a3f5e-4b9c-4c57-9d1d-2f1f7e0f6d1a"
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set(headerRequestID, requestID)
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	assert.Equal(t, requestID, recorder.Header().Get(headerRequestID))

	request = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set(headerRequestID, "not a uuid")
	recorder = httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	assert.NotEqual(t, "not a uuid", recorder.Header().Get(headerRequestID))
}

func TestUnmatchedRoutesAreNotFound(t *testing.T) {
	server := newTestServer(t, 0)
	cases := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/nope"},
		{http.MethodPut, "/count/normal/main"},
		{http.MethodPost, "/scores"},
	}
	for _, testCase := range cases {
		response := server.do(t, testCase.method, testCase.target, "", false)
		assert.Equal(t, http.StatusNotFound, response.Code, testCase.method+" "+testCase.target)
		assert.JSONEq(t, `{"status_code":404,"message":"not found"}`, response.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(t, 0)
	response := server.do(t, http.MethodGet, "/healthz", "", false)
	assert.JSONEq(t, `{"status":"ok"}`, response.Body.String())

	response = server.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, response.Code)
}

func TestRequestsAreObservedWithRouteLabels(t *testing.T) {
	server := newTestServer(t, 0)
	server.do(t, http.MethodGet, "/count/encore/time", "", false)
	server.do(t, http.MethodGet, "/missing", "", false)
	server.do(t, http.MethodOptions, "/count", "", false)

	assert.Equal(t, []observedRequest{
		{route: routeCount, method: http.MethodGet, statusCode: http.StatusOK},
		{route: routeUnmatched, method: http.MethodGet, statusCode: http.StatusNotFound},
		{route: routePreflight, method: http.MethodOptions, statusCode: http.StatusOK},
	}, server.observed.requests)
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	server := newTestServer(t, 2)

	for range 2 {
		response := server.do(t, http.MethodPost, "/count/normal/time", "", true)
		require.Equal(t, http.StatusOK, response.Code)
	}
	response := server.do(t, http.MethodPost, "/count/normal/time", "", true)
	assert.Equal(t, http.StatusTooManyRequests, response.Code)
	assert.JSONEq(t, `{"status_code":429,"message":"rate limited"}`, response.Body.String())

	response = server.do(t, http.MethodGet, "/count/normal/time", "", false)
	assert.Equal(t, http.StatusOK, response.Code)
	var counted struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &counted))
	assert.Equal(t, 2, counted.Count)
}

func TestNewHTTPServerTimeouts(t *testing.T) {
	httpServer := NewHTTPServer(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", httpServer.Addr)
	assert.Equal(t, 10*time.Second, httpServer.ReadHeaderTimeout)
	assert.Equal(t, 30*time.Second, httpServer.WriteTimeout)
	assert.Equal(t, 120*time.Second, httpServer.IdleTimeout)
}
