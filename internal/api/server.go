package api

import (
	"net/http"
	"time"

	"github.com/park285/biblequest-duels/internal/archive"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/msgcat"
	"github.com/park285/biblequest-duels/internal/progress"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/internal/tournament"
	"golang.org/x/time/rate"
)

// HeaderUserID carries the caller identity on every request.
const HeaderUserID = "X-User-Id"

type Deps struct {
	Duels       *duel.Manager
	Questions   question.Source
	Tournaments *tournament.Service
	Archive     archive.Repository
	Progress    *progress.Service
	Messages    *msgcat.Catalog
}

type Options struct {
	PollInterval  time.Duration
	QuestionBatch int
	HistoryLimit  int
	AnswerRate    rate.Limit
	AnswerBurst   int
	TournamentHr  int
}

type Server struct {
	deps    Deps
	opts    Options
	limiter *playerLimiter
	mux     *http.ServeMux
}

func New(deps Deps, opts Options) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2500 * time.Millisecond
	}
	if opts.QuestionBatch <= 0 {
		opts.QuestionBatch = 20
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.AnswerRate <= 0 {
		opts.AnswerRate = 4
	}
	if opts.AnswerBurst <= 0 {
		opts.AnswerBurst = 4
	}
	if opts.TournamentHr == 0 {
		opts.TournamentHr = 19
	}
	s := &Server{
		deps:    deps,
		opts:    opts,
		limiter: newPlayerLimiter(opts.AnswerRate, opts.AnswerBurst),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("POST /v1/matches/search", s.session(s.handleSearch))
	s.mux.Handle("GET /v1/matches/{id}", s.session(s.handlePoll))
	s.mux.Handle("POST /v1/matches/{id}/answers", s.session(s.handleAnswer))
	s.mux.Handle("POST /v1/matches/{id}/cancel", s.session(s.handleCancel))
	s.mux.Handle("GET /v1/matches/{id}/results", s.session(s.handleResults))
	s.mux.Handle("GET /v1/matches/{id}/watch", s.session(s.handleWatch))

	s.mux.Handle("GET /v1/questions/batch", s.session(s.handleQuestionBatch))

	s.mux.Handle("GET /v1/tournaments/today", s.session(s.handleTournamentToday))
	s.mux.Handle("POST /v1/tournaments/{id}/register", s.session(s.handleTournamentRegister))
	s.mux.Handle("GET /v1/tournaments/{id}/bracket", s.session(s.handleBracket))

	s.mux.Handle("GET /v1/players/{id}/history", s.session(s.handleHistory))
	s.mux.Handle("GET /v1/players/{id}/progress", s.session(s.handleProgress))
}

// Handler is the root handler with request logging and panic recovery.
func (s *Server) Handler() http.Handler { return recoverer(accessLog(s.mux)) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
