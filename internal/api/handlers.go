package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/scores"
)

const maxRequestBodyBytes = 64 << 10

// ArcadeService is the operation surface the handlers dispatch to.
type ArcadeService interface {
	Counts(mode string, submode string) (any, error)
	IncrementCount(ctx context.Context, headers http.Header, mode string, submode string) (scores.CountResult, error)
	Scores(mode string) (scores.Leaderboard, error)
	SubmitScore(ctx context.Context, headers http.Header, mode string, body []byte, contentType string) (scores.Leaderboard, error)
	ClearScores(ctx context.Context, headers http.Header) error
}

func (server *Server) handleAllCounts(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, _ httprouter.Params) {
	allCounts, countsError := server.service.Counts("", "")
	if countsError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, countsError)
		return
	}
	writeJSON(httpResponseWriter, http.StatusOK, allCounts)
}

// handleModeCount exists so GET /count/{mode} answers 400 rather than 404.
func (server *Server) handleModeCount(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
	_, countsError := server.service.Counts(routeParams.ByName("mode"), "")
	writeError(httpResponseWriter, httpRequest, server.logger, countsError)
}

func (server *Server) handleGetCount(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
	countResult, countsError := server.service.Counts(routeParams.ByName("mode"), routeParams.ByName("submode"))
	if countsError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, countsError)
		return
	}
	writeJSON(httpResponseWriter, http.StatusOK, countResult)
}

func (server *Server) handleIncrementCount(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
	countResult, incrementError := server.service.IncrementCount(httpRequest.Context(), httpRequest.Header, routeParams.ByName("mode"), routeParams.ByName("submode"))
	if incrementError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, incrementError)
		return
	}
	writeJSON(httpResponseWriter, http.StatusOK, countResult)
}

func (server *Server) handleGetScores(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
	board, scoresError := server.service.Scores(routeParams.ByName("mode"))
	if scoresError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, scoresError)
		return
	}
	writeJSON(httpResponseWriter, http.StatusOK, board)
}

func (server *Server) handleSubmitScore(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, routeParams httprouter.Params) {
	requestBodyBytes, readBodyError := io.ReadAll(http.MaxBytesReader(httpResponseWriter, httpRequest.Body, maxRequestBodyBytes))
	defer httpRequest.Body.Close()
	if readBodyError != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(readBodyError, &tooLarge) {
			writeError(httpResponseWriter, httpRequest, server.logger, scores.ErrInvalidData)
			return
		}
		writeError(httpResponseWriter, httpRequest, server.logger, apperr.Wrap(apperr.CodeInvalidRequest, "invalid request", readBodyError))
		return
	}

	board, submitError := server.service.SubmitScore(httpRequest.Context(), httpRequest.Header, routeParams.ByName("mode"), requestBodyBytes, httpRequest.Header.Get(headerContentType))
	if submitError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, submitError)
		return
	}
	writeJSON(httpResponseWriter, http.StatusOK, board)
}

func (server *Server) handleClearScores(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, _ httprouter.Params) {
	if clearError := server.service.ClearScores(httpRequest.Context(), httpRequest.Header); clearError != nil {
		writeError(httpResponseWriter, httpRequest, server.logger, clearError)
		return
	}
	httpResponseWriter.WriteHeader(http.StatusOK)
}

func handleHealth(httpResponseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	httpResponseWriter.Header().Set(headerContentType, contentTypeJSON)
	httpResponseWriter.WriteHeader(http.StatusOK)
	_, _ = httpResponseWriter.Write([]byte("{\"status\":\"ok\"}"))
}

func handleNotFound(httpResponseWriter http.ResponseWriter, _ *http.Request) {
	writeStatus(httpResponseWriter, http.StatusNotFound, apperr.ErrNotFound.Message)
}
