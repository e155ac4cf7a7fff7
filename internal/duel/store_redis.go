package duel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlMatch   = 7 * 24 * time.Hour
	ttlOutcome = 7 * 24 * time.Hour
)

type RedisStore struct {
	rdb        *redis.Client
	maxRetries int
}

func NewRedisStore(rdb *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &RedisStore{rdb: rdb, maxRetries: maxRetries}
}

func (s *RedisStore) keyMatch(id string) string   { return "duel:match:" + strings.TrimSpace(id) }
func (s *RedisStore) keyTurns(id string) string   { return s.keyMatch(id) + ":turns" }
func (s *RedisStore) keyOutcome(id string) string { return s.keyMatch(id) + ":outcome" }
func (s *RedisStore) keyWaiting(f Format) string  { return "duel:waiting:" + string(f) }

func (s *RedisStore) CreateMatch(ctx context.Context, m *Match) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return ErrInvalidArgs
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.keyMatch(m.ID), raw, ttlMatch).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	if m.Status == StatusWaiting {
		return s.rdb.ZAdd(ctx, s.keyWaiting(m.Format), redis.Z{Score: float64(m.CreatedAt.UnixMilli()), Member: m.ID}).Err()
	}
	return nil
}

func (s *RedisStore) LoadMatch(ctx context.Context, id string) (*Match, error) {
	raw, err := s.rdb.Get(ctx, s.keyMatch(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) UpdateMatch(ctx context.Context, id string, fn func(*Match) error) (*Match, error) {
	key := s.keyMatch(id)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var out *Match
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrMatchNotFound
			}
			if err != nil {
				return err
			}
			var cur Match
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			observed := cur.Version
			if err := fn(&cur); err != nil {
				if errors.Is(err, ErrNoChange) {
					fresh := Match{}
					_ = json.Unmarshal(raw, &fresh)
					out = &fresh
					return nil
				}
				return err
			}
			cur.Version = observed + 1
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, newRaw, ttlMatch)
				if cur.Status == StatusWaiting {
					pipe.ZAdd(ctx, s.keyWaiting(cur.Format), redis.Z{Score: float64(cur.CreatedAt.UnixMilli()), Member: cur.ID})
				} else if cur.Format.Capacity() > 0 {
					pipe.ZRem(ctx, s.keyWaiting(cur.Format), cur.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func (s *RedisStore) LatestWaiting(ctx context.Context, f Format) (*Match, error) {
	key := s.keyWaiting(f)
	// Index entries can outlive their match (TTL) or lag a status change; prune and retry.
	for i := 0; i < 5; i++ {
		ids, err := s.rdb.ZRevRange(ctx, key, 0, 0).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		m, err := s.LoadMatch(ctx, ids[0])
		if err != nil && !errors.Is(err, ErrMatchNotFound) {
			return nil, err
		}
		if m != nil && m.Status == StatusWaiting {
			return m, nil
		}
		_ = s.rdb.ZRem(ctx, key, ids[0]).Err()
	}
	return nil, nil
}

func (s *RedisStore) WaitingCreatedBefore(ctx context.Context, f Format, cutoff time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, s.keyWaiting(f), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
}

func (s *RedisStore) AppendTurn(ctx context.Context, t *Turn) error {
	if t == nil || strings.TrimSpace(t.MatchID) == "" {
		return ErrInvalidArgs
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	key := s.keyTurns(t.MatchID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, ttlMatch)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Turns(ctx context.Context, matchID string) ([]*Turn, error) {
	raws, err := s.rdb.LRange(ctx, s.keyTurns(matchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Turn, 0, len(raws))
	for _, raw := range raws {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

func (s *RedisStore) ClaimOutcome(ctx context.Context, matchID string, lease time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.keyOutcome(matchID), "claimed:"+time.Now().UTC().Format(time.RFC3339), lease).Result()
}

func (s *RedisStore) FinishOutcome(ctx context.Context, matchID string) error {
	return s.rdb.Set(ctx, s.keyOutcome(matchID), "done:"+time.Now().UTC().Format(time.RFC3339), ttlOutcome).Err()
}

func (s *RedisStore) ReleaseOutcome(ctx context.Context, matchID string) error {
	return s.rdb.Del(ctx, s.keyOutcome(matchID)).Err()
}

// ParseRedisURL turns redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
