package duelclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/park285/biblequest-duels/pkg/dueldto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Watch opens the match stream and returns a channel of snapshots. The
// channel closes when the match finishes, the server hangs up or ctx ends.
// The returned func reports why the stream stopped once the channel is closed.
func (c *Client) Watch(ctx context.Context, matchID string) (<-chan *dueldto.Match, func() error, error) {
	wsURL, err := c.wsURL("/v1/matches/" + url.PathEscape(matchID) + "/watch")
	if err != nil {
		return nil, nil, err
	}
	header := http.Header{}
	for k, v := range c.requestHeaders() {
		header.Set(k, v)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, nil, &dueldto.Error{Status: resp.StatusCode, Code: dueldto.CodeInternal, Message: err.Error()}
		}
		return nil, nil, err
	}

	out := make(chan *dueldto.Match, 1)
	var streamErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		defer conn.CloseNow()
		for {
			var m dueldto.Match
			if err := wsjson.Read(ctx, conn, &m); err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
					streamErr = err
				}
				return
			}
			select {
			case out <- &m:
			case <-ctx.Done():
				return
			}
		}
	}()
	wait := func() error {
		<-done
		return streamErr
	}
	return out, wait, nil
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
