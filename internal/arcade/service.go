// Package arcade is the operation boundary between transport and the scores
// core. Mutating operations authenticate first, then hold the store lock
// across load, mutate and save; reads go straight to the store.
package arcade

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/auth"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/scores"
)

const reasonReplayedToken = "replayed_token"

// DocumentStore is the persistence the service needs.
type DocumentStore interface {
	Load() (scores.Document, error)
	Update(ctx context.Context, mutate func(document *scores.Document) error) error
}

// AuthObserver is told why a credential was rejected.
type AuthObserver interface {
	AuthRejected(reason string)
}

// Options configure a Service. Secret is required.
type Options struct {
	Secret   string
	Now      func() time.Time
	Replays  *auth.ReplayCache
	Logger   *slog.Logger
	Observer AuthObserver
}

// Service implements every counter and leaderboard operation.
type Service struct {
	documents DocumentStore
	secret    string
	now       func() time.Time
	replays   *auth.ReplayCache
	logger    *slog.Logger
	observer  AuthObserver
}

func NewService(documents DocumentStore, options Options) *Service {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		documents: documents,
		secret:    options.Secret,
		now:       now,
		replays:   options.Replays,
		logger:    logger,
		observer:  options.Observer,
	}
}

// Counts returns every counter when mode and submode are both empty, or the
// single mode/submode counter.
func (service *Service) Counts(mode string, submode string) (any, error) {
	if (mode != "" || submode != "") && !validPair(mode, submode) {
		return nil, scores.ErrInvalidRequest
	}
	document, loadError := service.documents.Load()
	if loadError != nil {
		return nil, loadError
	}
	return scores.Counts(&document, mode, submode)
}

// IncrementCount records one play of mode/submode.
func (service *Service) IncrementCount(ctx context.Context, headers http.Header, mode string, submode string) (scores.CountResult, error) {
	if authError := service.authenticate(headers); authError != nil {
		return scores.CountResult{}, authError
	}
	if !validPair(mode, submode) {
		return scores.CountResult{}, scores.ErrInvalidRequest
	}

	var result scores.CountResult
	updateError := service.documents.Update(ctx, func(document *scores.Document) error {
		var incrementError error
		result, incrementError = scores.Increment(document, mode, submode)
		return incrementError
	})
	if updateError != nil {
		return scores.CountResult{}, updateError
	}
	return result, nil
}

// Scores returns the leaderboard for mode.
func (service *Service) Scores(mode string) (scores.Leaderboard, error) {
	if _, modeValid := scores.ParseMode(mode); !modeValid {
		return nil, scores.ErrInvalidMode
	}
	document, loadError := service.documents.Load()
	if loadError != nil {
		return nil, loadError
	}
	return scores.Scores(&document, mode)
}

// SubmitScore validates body as a score entry and inserts it into the mode's
// leaderboard. Validation finishes before the lock is taken.
func (service *Service) SubmitScore(ctx context.Context, headers http.Header, mode string, body []byte, contentType string) (scores.Leaderboard, error) {
	if authError := service.authenticate(headers); authError != nil {
		return nil, authError
	}
	if _, modeValid := scores.ParseMode(mode); !modeValid {
		return nil, scores.ErrInvalidMode
	}
	entry, parseError := scores.ParseEntry(body, contentType)
	if parseError != nil {
		return nil, parseError
	}

	var board scores.Leaderboard
	updateError := service.documents.Update(ctx, func(document *scores.Document) error {
		var submitError error
		board, submitError = scores.Submit(document, mode, entry)
		return submitError
	})
	if updateError != nil {
		return nil, updateError
	}
	return board, nil
}

// ClearScores empties both leaderboards.
func (service *Service) ClearScores(ctx context.Context, headers http.Header) error {
	if authError := service.authenticate(headers); authError != nil {
		return authError
	}
	return service.documents.Update(ctx, func(document *scores.Document) error {
		scores.Clear(document)
		return nil
	})
}

func (service *Service) authenticate(headers http.Header) error {
	now := service.now()
	if checkError := auth.Check(headers, now, service.secret); checkError != nil {
		service.rejected(checkError.Error())
		return apperr.Wrap(apperr.CodeUnauthorized, apperr.ErrUnauthorized.Message, checkError)
	}
	if service.replays != nil {
		token, parseError := auth.ParseToken(auth.BearerCredential(headers))
		if parseError != nil || !service.replays.Mark(token, now) {
			service.rejected(reasonReplayedToken)
			return apperr.Wrap(apperr.CodeUnauthorized, apperr.ErrUnauthorized.Message, errors.New(reasonReplayedToken))
		}
	}
	return nil
}

func (service *Service) rejected(reason string) {
	service.logger.Info("credential rejected", "reason", reason)
	if service.observer != nil {
		service.observer.AuthRejected(reason)
	}
}

func validPair(mode string, submode string) bool {
	_, modeValid := scores.ParseMode(mode)
	_, submodeValid := scores.ParseSubmode(submode)
	return modeValid && submodeValid
}
