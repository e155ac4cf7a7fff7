package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlTournament = 30 * 24 * time.Hour

// Store keeps tournaments, registrations and bracket entries in Redis.
type Store struct {
	rdb        *redis.Client
	maxRetries int
}

func NewStore(rdb *redis.Client, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Store{rdb: rdb, maxRetries: maxRetries}
}

func keyTournament(id string) string   { return "tq:tournament:" + id }
func keyDaily(day string) string       { return "tq:daily:" + day }
func keyParticipants(id string) string { return keyTournament(id) + ":participants" }
func keyEntries(id string) string      { return keyTournament(id) + ":entries" }
func keyEntry(id string) string        { return "tq:entry:" + id }

// ClaimDaily binds id to day unless another tournament already has it. It
// returns the id that owns the day.
func (s *Store) ClaimDaily(ctx context.Context, day, id string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyDaily(day), id, ttlTournament).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return id, true, nil
	}
	owner, err := s.rdb.Get(ctx, keyDaily(day)).Result()
	return owner, false, err
}

func (s *Store) DailyID(ctx context.Context, day string) (string, error) {
	id, err := s.rdb.Get(ctx, keyDaily(day)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return id, err
}

func (s *Store) SaveTournament(ctx context.Context, t *Tournament) error {
	return setJSON(ctx, s.rdb, keyTournament(t.ID), t)
}

func (s *Store) Tournament(ctx context.Context, id string) (*Tournament, error) {
	var t Tournament
	if err := getJSON(ctx, s.rdb, keyTournament(id), &t); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateTournament(ctx context.Context, id string, fn func(*Tournament) error) (*Tournament, error) {
	out, err := casJSON(ctx, s.rdb, s.maxRetries, keyTournament(id), fn)
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return out, err
}

// AddParticipant registers a player and returns the participant count.
func (s *Store) AddParticipant(ctx context.Context, tournamentID, playerID string, at time.Time) (int, error) {
	key := keyParticipants(tournamentID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAddNX(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: playerID})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, ttlTournament)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (s *Store) RemoveParticipant(ctx context.Context, tournamentID, playerID string) error {
	return s.rdb.ZRem(ctx, keyParticipants(tournamentID), playerID).Err()
}

// Participants lists players in registration order.
func (s *Store) Participants(ctx context.Context, tournamentID string) ([]string, error) {
	return s.rdb.ZRange(ctx, keyParticipants(tournamentID), 0, -1).Result()
}

func (s *Store) SaveEntry(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyEntry(e.ID), raw, ttlTournament)
	pipe.SAdd(ctx, keyEntries(e.TournamentID), e.ID)
	pipe.Expire(ctx, keyEntries(e.TournamentID), ttlTournament)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Entry(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	if err := getJSON(ctx, s.rdb, keyEntry(id), &e); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, id string, fn func(*Entry) error) (*Entry, error) {
	out, err := casJSON(ctx, s.rdb, s.maxRetries, keyEntry(id), fn)
	if errors.Is(err, redis.Nil) {
		return nil, ErrEntryNotFound
	}
	return out, err
}

// Entries returns every entry of a tournament ordered by round then slot.
func (s *Store) Entries(ctx context.Context, tournamentID string) ([]*Entry, error) {
	ids, err := s.rdb.SMembers(ctx, keyEntries(tournamentID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.Entry(ctx, id)
		if errors.Is(err, ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].MatchInRound < out[j].MatchInRound
	})
	return out, nil
}

func setJSON(ctx context.Context, rdb *redis.Client, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, raw, ttlTournament).Err()
}

func getJSON(ctx context.Context, rdb *redis.Client, key string, v any) error {
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// casJSON is a WATCH-guarded read-modify-write of one JSON document. fn may
// return errNoChange to leave the document as read.
func casJSON[T any](ctx context.Context, rdb *redis.Client, retries int, key string, fn func(*T) error) (*T, error) {
	for attempt := 0; attempt < retries; attempt++ {
		var out *T
		err := rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var cur T
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if err := fn(&cur); err != nil {
				if errors.Is(err, errNoChange) {
					var fresh T
					if err := json.Unmarshal(raw, &fresh); err != nil {
						return err
					}
					out = &fresh
					return nil
				}
				return err
			}
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, newRaw, ttlTournament)
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
