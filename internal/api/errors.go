package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/internal/tournament"
	"github.com/park285/biblequest-duels/pkg/dueldto"
	"go.uber.org/zap"
)

var (
	errUnauthenticated = errf("missing " + HeaderUserID)
	errBadRequest      = errf("malformed request")
	errRateLimited     = errf("rate limited")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

type classified struct {
	status int
	code   string
	key    string
	data   map[string]any
}

func (s *Server) classify(err error, fallbackKey string) classified {
	switch {
	case errors.Is(err, errUnauthenticated):
		return classified{http.StatusUnauthorized, dueldto.CodeUnauthenticated, "auth.missing", nil}
	case errors.Is(err, errRateLimited):
		return classified{http.StatusTooManyRequests, dueldto.CodeRateLimited, "request.rate_limited", nil}
	case errors.Is(err, errBadRequest), errors.Is(err, duel.ErrInvalidArgs), errors.Is(err, tournament.ErrInvalidArgs):
		return classified{http.StatusBadRequest, dueldto.CodeInvalidRequest, "request.invalid", nil}
	case errors.Is(err, duel.ErrInvalidFormat):
		return classified{http.StatusBadRequest, dueldto.CodeInvalidRequest, "match.invalid_format", nil}
	case errors.Is(err, duel.ErrMatchNotFound):
		return classified{http.StatusNotFound, dueldto.CodeNotFound, "match.not_found", nil}
	case errors.Is(err, duel.ErrNotParticipant):
		return classified{http.StatusForbidden, dueldto.CodeForbidden, "match.not_participant", nil}
	case errors.Is(err, duel.ErrNotInProgress):
		return classified{http.StatusConflict, dueldto.CodeConflict, "match.not_in_progress", nil}
	case errors.Is(err, duel.ErrNotCancellable):
		return classified{http.StatusConflict, dueldto.CodeConflict, "match.not_cancellable", nil}
	case errors.Is(err, duel.ErrTerminal), errors.Is(err, duel.ErrInvalidTransition):
		return classified{http.StatusConflict, dueldto.CodeConflict, "match.update_failed", nil}
	case errors.Is(err, duel.ErrConflict), errors.Is(err, tournament.ErrConflict):
		return classified{http.StatusConflict, dueldto.CodeConflict, "match.conflict", nil}
	case errors.Is(err, question.ErrNotFound):
		return classified{http.StatusNotFound, dueldto.CodeNotFound, "question.not_found", nil}
	case errors.Is(err, question.ErrInvalidChoice):
		return classified{http.StatusBadRequest, dueldto.CodeInvalidRequest, "question.invalid_choice", nil}
	case errors.Is(err, tournament.ErrNotFound), errors.Is(err, tournament.ErrNotOpenYet), errors.Is(err, tournament.ErrEntryNotFound):
		return classified{http.StatusNotFound, dueldto.CodeNotFound, "tournament.not_found", map[string]any{"Hour": s.opts.TournamentHr}}
	case errors.Is(err, tournament.ErrClosed):
		return classified{http.StatusConflict, dueldto.CodeConflict, "tournament.closed", nil}
	}
	if fallbackKey == "" {
		fallbackKey = "internal"
	}
	return classified{http.StatusInternalServerError, dueldto.CodeInternal, fallbackKey, nil}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorAs(w, r, err, "", nil)
}

// writeErrorAs renders err with the catalog text. fallbackKey names the
// message for unclassified failures; data feeds the message template.
func (s *Server) writeErrorAs(w http.ResponseWriter, r *http.Request, err error, fallbackKey string, data map[string]any) {
	c := s.classify(err, fallbackKey)
	if c.status >= 500 {
		obslog.L().Error("http_error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if c.data == nil {
		c.data = data
	}
	msg := err.Error()
	if s.deps.Messages != nil {
		msg = s.deps.Messages.Text(c.key, c.data)
	}
	writeJSON(w, c.status, &dueldto.Error{Code: c.code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("http_encode_failed", zap.Error(err))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}
