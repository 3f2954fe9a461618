// Package store is the Result Store: the shared key/value store backing
// per-language FIFO queues and job/state/result/cancel records, per
// spec.md §6's "Result store layout" and grounded on the go-redis client
// usage pattern of the pack's RedisCache, extended here with BLPop/RPush/LLen
// directly against go-redis/v9 (absent from that cache wrapper) using the
// key-naming and blocking-pop-with-timeout convention of the original
// worker's redis.rs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"optimus/internal/job"
	"optimus/internal/oerr"
)

// ErrNotFound is returned when a job/result/state key does not exist.
var ErrNotFound = errors.New("store: not found")

func jobKey(id string) string    { return "job:" + id }
func stateKey(id string) string  { return "state:" + id }
func resultKey(id string) string { return "result:" + id }
func cancelKey(id string) string { return "cancel:" + id }
func queueKey(lang job.Language) string { return "queue:" + string(lang) }

// Store is the Redis-backed Result Store.
type Store struct {
	client *redis.Client
}

// Config mirrors the dial parameters the pack's cache wrapper exposes,
// trimmed to what Optimus actually tunes.
type Config struct {
	Addr            string
	Password        string
	DB              int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
}

// DefaultConfig returns sane pool/timeout defaults for addr, which may be a
// bare host:port or a redis:// URL (whose host, password and database are
// then used).
func DefaultConfig(addr string) *Config {
	cfg := &Config{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second, // must exceed the BLPop poll timeout
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
	}
	if opts, err := redis.ParseURL(addr); err == nil {
		cfg.Addr, cfg.Password, cfg.DB = opts.Addr, opts.Password, opts.DB
	}
	return cfg
}

// New dials the store and verifies connectivity with a Ping.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("store: addr required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// SubmitJob writes the job body with a TTL and pushes its id onto the
// language queue, per spec.md §4.3's submit contract. Both writes are not
// required to be atomic with each other (the queue entry is the only thing a
// worker acts on; a dangling job id with no body is handled as InternalError
// by the engine per spec.md §4.2 step 2).
func (s *Store) SubmitJob(ctx context.Context, j *job.Job, ttl time.Duration) error {
	body, err := json.Marshal(j)
	if err != nil {
		return oerr.Wrap(err, oerr.Internal)
	}
	if err := s.client.Set(ctx, jobKey(j.ID), body, ttl).Err(); err != nil {
		return oerr.Wrap(err, oerr.StoreUnavailable)
	}
	if err := s.SetState(ctx, j.ID, job.StateQueued); err != nil {
		return err
	}
	if err := s.client.RPush(ctx, queueKey(j.Language), j.ID).Err(); err != nil {
		return oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return nil
}

// GetJob reads the job body. Returns ErrNotFound if missing or expired.
func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	body, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	var j job.Job
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, oerr.Wrap(err, oerr.Internal)
	}
	return &j, nil
}

// PopJob performs a blocking pop on the language queue with the given
// timeout, returning ("", nil) on a timeout (no job available) so the
// caller's poll loop remains interruptible, per spec.md §4.2 step 1 and the
// original worker's BLPOP(queue, 5.0) pattern.
func (s *Store) PopJob(ctx context.Context, lang job.Language, timeout time.Duration) (string, error) {
	result, err := s.client.BLPop(ctx, timeout, queueKey(lang)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", oerr.Wrap(err, oerr.StoreUnavailable)
	}
	// BLPop returns [key, value]; we only ever pop one key.
	if len(result) != 2 {
		return "", oerr.Newf(oerr.Internal, "store: unexpected BLPop reply shape %v", result)
	}
	return result[1], nil
}

// QueueLength is the Autoscaling Signal of spec.md §4.4.
func (s *Store) QueueLength(ctx context.Context, lang job.Language) (int64, error) {
	n, err := s.client.LLen(ctx, queueKey(lang)).Result()
	if err != nil {
		return 0, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return n, nil
}

// SetState writes the JobState string for id.
func (s *Store) SetState(ctx context.Context, id string, state job.State) error {
	if err := s.client.Set(ctx, stateKey(id), string(state), 0).Err(); err != nil {
		return oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return nil
}

// GetState reads the JobState string for id.
func (s *Store) GetState(ctx context.Context, id string) (job.State, error) {
	v, err := s.client.Get(ctx, stateKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return job.State(v), nil
}

// CommitResult writes the terminal JobResult and JobState together so
// readers never observe results without the matching overall_status (the
// single-transactional-write guarantee of spec.md §5), via a pipeline.
func (s *Store) CommitResult(ctx context.Context, result *job.JobResult, state job.State, ttl time.Duration) error {
	body, err := json.Marshal(result)
	if err != nil {
		return oerr.Wrap(err, oerr.Internal)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, resultKey(result.JobID), body, ttl)
	pipe.Set(ctx, stateKey(result.JobID), string(state), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return nil
}

// GetResult reads the committed JobResult, if any.
func (s *Store) GetResult(ctx context.Context, id string) (*job.JobResult, error) {
	body, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	var r job.JobResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, oerr.Wrap(err, oerr.Internal)
	}
	return &r, nil
}

// RequestCancel sets the cancel flag for id, per spec.md §4.3's cancel contract.
func (s *Store) RequestCancel(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.client.Set(ctx, cancelKey(id), "1", ttl).Err(); err != nil {
		return oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return nil
}

// IsCancelled reports whether the cancel flag is present for id, per
// spec.md §4.2's cancellation-observation points.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, cancelKey(id)).Result()
	if err != nil {
		return false, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return n > 0, nil
}

// Exists reports whether a job with this id was ever submitted (used by the
// Dispatcher to distinguish "unknown id" 404s from "still pending" 202s).
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, oerr.Wrap(err, oerr.StoreUnavailable)
	}
	return n > 0, nil
}
