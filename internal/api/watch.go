package api

import (
	"context"
	"net/http"
	"time"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const watchWriteTimeout = 5 * time.Second

// handleWatch streams match snapshots over a websocket until the match ends
// or the client goes away. Each tick is a regular poll, heartbeat included.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request, sess duel.Session) {
	id := r.PathValue("id")
	if _, err := s.deps.Duels.PollMatch(r.Context(), sess, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("match_id", id), zap.Error(err))
		return
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(c.CloseRead(r.Context()))
	defer cancel()

	poller := duel.NewPoller(func(ctx context.Context) (*duel.Match, error) {
		res, err := s.deps.Duels.PollMatch(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		return res.Match, nil
	}, s.opts.PollInterval)
	go func() { _ = poller.Run(ctx) }()

	obslog.L().Info("ws_watch_open", zap.String("match_id", id), zap.String("player_id", sess.PlayerID))
	for m := range poller.Updates() {
		wctx, wcancel := context.WithTimeout(ctx, watchWriteTimeout)
		err := wsjson.Write(wctx, c, toMatch(m))
		wcancel()
		if err != nil {
			obslog.L().Debug("ws_watch_write_failed", zap.String("match_id", id), zap.Error(err))
			cancel()
			for range poller.Updates() {
			}
			return
		}
	}
	if ctx.Err() == nil {
		_ = c.Close(websocket.StatusNormalClosure, "match finished")
	}
}
