package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/pkg/dueldto"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	var req dueldto.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := duel.ParseFormat(req.Format)
	if err != nil {
		s.writeErrorAs(w, r, err, "", map[string]any{"Format": req.Format})
		return
	}
	m, err := s.deps.Duels.FindOrJoinMatch(r.Context(), sess, format)
	if err != nil {
		s.writeErrorAs(w, r, err, "match.search_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMatch(m))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	res, err := s.deps.Duels.PollMatch(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &dueldto.PollResponse{Match: toMatch(res.Match), Done: res.Done, TimedOut: res.TimedOut})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	if !s.limiter.Allow(sess.PlayerID) {
		s.writeError(w, r, errRateLimited)
		return
	}
	var req dueldto.AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Duels.SubmitAnswer(r.Context(), sess, r.PathValue("id"), req.QuestionID, req.ChoiceIndex)
	if err != nil {
		s.writeErrorAs(w, r, err, "match.update_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, &dueldto.AnswerResponse{
		TurnID:       res.Turn.ID,
		Correct:      res.Correct,
		CorrectIndex: res.CorrectIndex,
		Explanation:  res.Explanation,
		Applied:      res.Applied,
		Match:        toMatch(res.Match),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	m, err := s.deps.Duels.CancelMatch(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.writeErrorAs(w, r, err, "match.update_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMatch(m))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	id := r.PathValue("id")
	m, err := s.deps.Duels.Store().LoadMatch(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !m.HasPlayer(sess.PlayerID) {
		s.writeError(w, r, duel.ErrNotParticipant)
		return
	}
	res, err := s.deps.Duels.ComputeResults(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResults(res))
}

func (s *Server) handleQuestionBatch(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	n := s.opts.QuestionBatch
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 100 {
			s.writeError(w, r, errBadRequest)
			return
		}
		n = v
	}
	qs, err := s.deps.Questions.Batch(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := &dueldto.QuestionBatch{Questions: make([]dueldto.Question, 0, len(qs))}
	for _, q := range qs {
		out.Questions = append(out.Questions, toQuestion(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTournamentToday(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	t, err := s.deps.Tournaments.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTournament(t))
}

func (s *Server) handleTournamentRegister(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	t, err := s.deps.Tournaments.Register(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTournament(t))
}

func (s *Server) handleBracket(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	b, err := s.deps.Tournaments.Bracket(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBracket(b))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	limit := s.opts.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, r, errBadRequest)
			return
		}
		limit = min(v, 100)
	}
	playerID := r.PathValue("id")
	entries, err := s.deps.Archive.RecentMatches(r.Context(), playerID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistory(playerID, entries))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	if s.deps.Progress == nil {
		s.writeError(w, r, errors.New("progress service not configured"))
		return
	}
	p, err := s.deps.Progress.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgress(p))
}
