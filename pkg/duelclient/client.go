package duelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/biblequest-duels/pkg/dueldto"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	userID  string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithUser sets the X-User-Id sent on every request.
func WithUser(playerID string) Option {
	return func(c *Client) { c.userID = strings.TrimSpace(playerID) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Search(ctx context.Context, format string) (*dueldto.Match, error) {
	var out dueldto.Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/matches/search", dueldto.SearchRequest{Format: format}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Poll(ctx context.Context, matchID string) (*dueldto.PollResponse, error) {
	var out dueldto.PollResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Answer(ctx context.Context, matchID, questionID string, choice int) (*dueldto.AnswerResponse, error) {
	var out dueldto.AnswerResponse
	req := dueldto.AnswerRequest{QuestionID: questionID, ChoiceIndex: choice}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/matches/"+url.PathEscape(matchID)+"/answers", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cancel(ctx context.Context, matchID string) (*dueldto.Match, error) {
	var out dueldto.Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/matches/"+url.PathEscape(matchID)+"/cancel", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Results(ctx context.Context, matchID string) (*dueldto.Results, error) {
	var out dueldto.Results
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID)+"/results", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QuestionBatch(ctx context.Context, n int) ([]dueldto.Question, error) {
	path := "/v1/questions/batch"
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}
	var out dueldto.QuestionBatch
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (c *Client) TournamentToday(ctx context.Context) (*dueldto.Tournament, error) {
	var out dueldto.Tournament
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/tournaments/today", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, tournamentID string) (*dueldto.Tournament, error) {
	var out dueldto.Tournament
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/tournaments/"+url.PathEscape(tournamentID)+"/register", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Bracket(ctx context.Context, tournamentID string) (*dueldto.Bracket, error) {
	var out dueldto.Bracket
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/tournaments/"+url.PathEscape(tournamentID)+"/bracket", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, playerID string, limit int) (*dueldto.History, error) {
	path := "/v1/players/" + url.PathEscape(playerID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out dueldto.History
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Progress(ctx context.Context, playerID string) (*dueldto.Progress, error) {
	var out dueldto.Progress
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/players/"+url.PathEscape(playerID)+"/progress", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) requestHeaders() map[string]string {
	h := map[string]string{}
	if c.userID != "" {
		h["X-User-Id"] = c.userID
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			h[k] = v
		}
	}
	return h
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	for k, v := range c.requestHeaders() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = max(c.retryMax, 1)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := decodeError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeError(status int, body []byte) *dueldto.Error {
	e := &dueldto.Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || (e.Code == "" && e.Message == "") {
		e.Code = dueldto.CodeInternal
		e.Message = fmt.Sprintf("duel api error: status=%d body=%s", status, truncate(string(body), 512))
	}
	return e
}

// StatusOf returns the HTTP status of an API error, or 0.
func StatusOf(err error) int {
	var e *dueldto.Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
