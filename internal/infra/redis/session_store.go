package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizapp-service/internal/domain"
)

const (
	fieldUser      = "current_user_id"
	fieldStartTime = "start_time"
	fieldRunning   = "running"
)

// SessionStore is a Redis implementation of app.SessionStore. Each browser session owns:
//
//	HSET quiz:session:{sid}       current_user_id | start_time | running
//	HSET quiz:session:{sid}:forms {step} {snapshot json}
//
// Every write refreshes the TTL of both keys.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) SaveForm(ctx context.Context, sessionID string, snap domain.FormSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.formsKey(sessionID), strconv.Itoa(snap.CurrentStep), raw)
	s.touch(ctx, pipe, sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Form(ctx context.Context, sessionID string, step int) (domain.FormSnapshot, bool, error) {
	raw, err := s.client.HGet(ctx, s.formsKey(sessionID), strconv.Itoa(step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.FormSnapshot{}, false, nil
	}
	if err != nil {
		return domain.FormSnapshot{}, false, err
	}
	var snap domain.FormSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.FormSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *SessionStore) ClearForms(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.formsKey(sessionID)).Err()
}

func (s *SessionStore) StartTimer(ctx context.Context, sessionID string, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(sessionID),
		fieldStartTime, at.UTC().Format(time.RFC3339Nano),
		fieldRunning, "1",
	)
	s.touch(ctx, pipe, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// TakeTimer claims the start time with HDEL so concurrent readers cannot both observe it.
func (s *SessionStore) TakeTimer(ctx context.Context, sessionID string) (time.Time, bool, error) {
	key := s.key(sessionID)
	vals, err := s.client.HMGet(ctx, key, fieldStartTime, fieldRunning).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	raw, _ := vals[0].(string)
	running, _ := vals[1].(string)
	if raw == "" || running != "1" {
		return time.Time{}, false, nil
	}

	removed, err := s.client.HDel(ctx, key, fieldStartTime, fieldRunning).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	if removed == 0 {
		return time.Time{}, false, nil
	}
	started, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse start time: %w", err)
	}
	return started, true, nil
}

func (s *SessionStore) SetUser(ctx context.Context, sessionID string, userID int64) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(sessionID), fieldUser, userID)
	s.touch(ctx, pipe, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) User(ctx context.Context, sessionID string) (int64, bool, error) {
	id, err := s.client.HGet(ctx, s.key(sessionID), fieldUser).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *SessionStore) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID), s.formsKey(sessionID)).Err()
}

func (s *SessionStore) touch(ctx context.Context, pipe redis.Pipeliner, sessionID string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.key(sessionID), s.ttl)
	pipe.Expire(ctx, s.formsKey(sessionID), s.ttl)
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) formsKey(sessionID string) string {
	return "quiz:session:" + sessionID + ":forms"
}
