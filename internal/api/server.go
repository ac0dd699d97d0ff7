// Package api is the HTTP surface of the arcade service: routing, CORS and
// preflight, request ids, access logging, per-client rate limiting on mutating
// routes, and the status envelope used for errors.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
)

const (
	routeAllCounts = "/count"
	routeModeCount = "/count/:mode"
	routeCount     = "/count/:mode/:submode"
	routeScores    = "/scores/:mode"
	routeAllScores = "/scores"
	routeHealth    = "/healthz"
	routeMetrics   = "/metrics"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveRequest(route string, method string, statusCode int, elapsed time.Duration)
}

// Options configure a Server. Service is required.
type Options struct {
	Service            ArcadeService
	Logger             *slog.Logger
	Observer           RequestObserver
	MetricsHandler     http.Handler
	RateLimitPerMinute int
	CorsAllowOrigin    string
}

// Server dispatches requests to the arcade service.
type Server struct {
	service         ArcadeService
	logger          *slog.Logger
	observer        RequestObserver
	metricsHandler  http.Handler
	limiter         *clientLimiter
	corsAllowOrigin string
}

func NewServer(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsAllowOrigin := options.CorsAllowOrigin
	if corsAllowOrigin == "" {
		corsAllowOrigin = "*"
	}
	return &Server{
		service:         options.Service,
		logger:          logger,
		observer:        options.Observer,
		metricsHandler:  options.MetricsHandler,
		limiter:         newClientLimiter(options.RateLimitPerMinute),
		corsAllowOrigin: corsAllowOrigin,
	}
}

// Handler returns the full middleware chain around the router.
func (server *Server) Handler() http.Handler {
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false
	router.HandleOPTIONS = false
	router.NotFound = http.HandlerFunc(handleNotFound)
	router.PanicHandler = server.handlePanic

	router.GET(routeAllCounts, named(routeAllCounts, server.handleAllCounts))
	router.GET(routeModeCount, named(routeModeCount, server.handleModeCount))
	router.GET(routeCount, named(routeCount, server.handleGetCount))
	router.POST(routeCount, named(routeCount, server.limited(server.handleIncrementCount)))
	router.GET(routeScores, named(routeScores, server.handleGetScores))
	router.POST(routeScores, named(routeScores, server.limited(server.handleSubmitScore)))
	router.DELETE(routeAllScores, named(routeAllScores, server.limited(server.handleClearScores)))
	router.GET(routeHealth, named(routeHealth, handleHealth))
	if server.metricsHandler != nil {
		metricsHandler := server.metricsHandler
		router.GET(routeMetrics, named(routeMetrics, func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, _ httprouter.Params) {
			metricsHandler.ServeHTTP(httpResponseWriter, httpRequest)
		}))
	}

	return withRequestID(withAccessLog(server.logger, server.observer, withCORS(server.corsAllowOrigin, router)))
}

// limited rejects a request with 429 once the client's bucket is empty.
func (server *Server) limited(next httprouter.Handle) httprouter.Handle {
	return func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
		if !server.limiter.allow(rateKey(httpRequest.RemoteAddr, httpRequest.Header.Get("Origin")), timeNow()) {
			writeError(httpResponseWriter, httpRequest, server.logger, apperr.ErrRateLimited)
			return
		}
		next(httpResponseWriter, httpRequest, routeParams)
	}
}

func (server *Server) handlePanic(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, recovered any) {
	server.logger.Error("handler panic",
		"panic", recovered,
		"method", httpRequest.Method,
		"path", httpRequest.URL.Path,
		"request_id", requestIDFrom(httpRequest.Context()),
	)
	writeStatus(httpResponseWriter, http.StatusInternalServerError, "internal error")
}

func named(route string, next httprouter.Handle) httprouter.Handle {
	return func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
		setRoute(httpRequest.Context(), route)
		next(httpResponseWriter, httpRequest, routeParams)
	}
}

// NewHTTPServer wraps handler in an http.Server with bounded timeouts.
func NewHTTPServer(listenAddress string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              listenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
