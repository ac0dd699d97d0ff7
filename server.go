package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/api"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/arcade"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/auth"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/config"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/store"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/telemetry"
)

const shutdownGracePeriod = 10 * time.Second

func newHTTPServer(serviceConfig config.Config, logger *slog.Logger) *http.Server {
	metrics := telemetry.NewMetrics()

	documentStore := store.New(serviceConfig.DataFile, store.Options{
		LockTimeout: serviceConfig.LockTimeout,
		Logger:      logger,
		Observer:    metrics,
	})

	var replayCache *auth.ReplayCache
	if serviceConfig.RejectReplays {
		replayCache = auth.NewReplayCache()
	}

	arcadeService := arcade.NewService(documentStore, arcade.Options{
		Secret:   serviceConfig.APIKey,
		Now:      timeNow,
		Replays:  replayCache,
		Logger:   logger,
		Observer: metrics,
	})

	apiServer := api.NewServer(api.Options{
		Service:            arcadeService,
		Logger:             logger,
		Observer:           metrics,
		MetricsHandler:     metrics.Handler(),
		RateLimitPerMinute: serviceConfig.RateLimitPerMinute,
		CorsAllowOrigin:    serviceConfig.CorsAllowOrigin,
	})

	return api.NewHTTPServer(serviceConfig.ListenAddress, apiServer.Handler())
}

// serveUntilDone runs httpServer on listener until ctx is cancelled, then
// drains in-flight requests for at most shutdownGracePeriod.
func serveUntilDone(ctx context.Context, httpServer *http.Server, listener net.Listener, logger *slog.Logger) error {
	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.Serve(listener)
	}()

	select {
	case serveError := <-serveErrors:
		if serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serveError)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace_period", shutdownGracePeriod)
	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancelShutdown()
	if shutdownError := httpServer.Shutdown(shutdownContext); shutdownError != nil {
		return fmt.Errorf("shutdown: %w", shutdownError)
	}
	if serveError := <-serveErrors; serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", serveError)
	}
	return nil
}

// tiny indirection to ease testing (can be stubbed)
var timeNow = func() time.Time { return time.Now() }
