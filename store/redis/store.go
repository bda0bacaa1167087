// Package redis provides a Redis-backed ergate.Queue and
// ergate.StateStore. The queue is a plain list (RPUSH/BLPOP); the state
// store keeps one JSON blob per job plus a sorted set of PENDING/SCHEDULED
// jobs scored by start time. FetchManyAndTransitionToQueued claims the due
// members atomically via a Lua script, then writes their QUEUED status in
// a separate pipeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"

	ergate "github.com/ergatehq/ergate"
)

const (
	jobKeyPrefix = "ergate:job:"
	dueZSetKey   = "ergate:due"
	queueKey     = "ergate:queue"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	// FetchBatchSize bounds how many due jobs one
	// FetchManyAndTransitionToQueued call returns; zero means 100.
	FetchBatchSize int64
}

// Store is both an ergate.Queue and an ergate.StateStore backed by a
// single Redis connection.
type Store struct {
	client    *goredis.Client
	batchSize int64
}

// New connects to Redis per cfg, verifying the connection with a PING
// wrapped in exponential backoff so a transient startup race with the
// Redis container doesn't fail the whole process.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	batch := cfg.FetchBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Store{client: client, batchSize: batch}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

func jobKey(id string) string { return jobKeyPrefix + id }

func encodeJob(job ergate.Job) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job %q: %w", job.ID, err)
	}
	return string(b), nil
}

func decodeJob(raw string) (ergate.Job, error) {
	var job ergate.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return ergate.Job{}, fmt.Errorf("decoding job record: %w", err)
	}
	return job, nil
}

func dueScore(job ergate.Job) float64 {
	if job.RequestedStartTime == nil {
		return 0
	}
	return float64(job.RequestedStartTime.Unix())
}

// Create persists a brand-new job and, if it is PENDING or SCHEDULED,
// indexes it in the due-jobs sorted set under its start time.
func (s *Store) Create(ctx context.Context, job ergate.Job) error {
	encoded, err := encodeJob(job)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), encoded, 0)
	if job.Status == ergate.StatusPending || job.Status == ergate.StatusScheduled {
		pipe.ZAdd(ctx, dueZSetKey, goredis.Z{Score: dueScore(job), Member: job.ID})
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("creating job %q: %w", job.ID, err)
	}
	return nil
}

// Get returns the current record for id.
func (s *Store) Get(ctx context.Context, id string) (ergate.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Result()
	if err == goredis.Nil {
		return ergate.Job{}, fmt.Errorf("job %q not found", id)
	}
	if err != nil {
		return ergate.Job{}, fmt.Errorf("fetching job %q: %w", id, err)
	}
	return decodeJob(raw)
}

// Update persists job's current state and removes it from the due-jobs
// index if it's no longer PENDING/SCHEDULED.
func (s *Store) Update(ctx context.Context, job ergate.Job) error {
	encoded, err := encodeJob(job)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), encoded, 0)
	if job.Status == ergate.StatusPending || job.Status == ergate.StatusScheduled {
		pipe.ZAdd(ctx, dueZSetKey, goredis.Z{Score: dueScore(job), Member: job.ID})
	} else {
		pipe.ZRem(ctx, dueZSetKey, job.ID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("updating job %q: %w", job.ID, err)
	}
	return nil
}

// fetchDueScript atomically selects every due member of the sorted set
// (score <= now), removes it from the index, and returns its IDs, so two
// publishers racing against the same Redis never both claim a job.
var fetchDueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids > 0 then
	redis.call('ZREM', KEYS[1], unpack(ids))
end
return ids
`)

// FetchManyAndTransitionToQueued selects due jobs, marks each QUEUED,
// persists the change, and returns the updated records.
func (s *Store) FetchManyAndTransitionToQueued(ctx context.Context) ([]ergate.Job, error) {
	now := time.Now().Unix()
	res, err := fetchDueScript.Run(ctx, s.client, []string{dueZSetKey}, now, s.batchSize).StringSlice()
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("selecting due jobs: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	jobs := make([]ergate.Job, 0, len(res))
	pipe := s.client.TxPipeline()
	for _, id := range res {
		raw, err := s.client.Get(ctx, jobKey(id)).Result()
		if err != nil {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		job.Status = ergate.StatusQueued
		encoded, err := encodeJob(job)
		if err != nil {
			continue
		}
		pipe.Set(ctx, jobKey(id), encoded, 0)
		jobs = append(jobs, job)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persisting queued transition: %w", err)
	}
	return jobs, nil
}

// GetOne blocks on the queue list until a job is available or ctx is
// done.
func (s *Store) GetOne(ctx context.Context) (ergate.Job, error) {
	res, err := s.client.BLPop(ctx, 0, queueKey).Result()
	if err != nil {
		return ergate.Job{}, fmt.Errorf("blocking pop from queue: %w", err)
	}
	// BLPop returns [key, value]; value is the job's id.
	return s.Get(ctx, res[1])
}

// Put enqueues job's id onto the queue list.
func (s *Store) Put(ctx context.Context, job ergate.Job) error {
	if err := s.client.RPush(ctx, queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("enqueueing job %q: %w", job.ID, err)
	}
	return nil
}

// PutMany enqueues a batch of job ids in one round trip.
func (s *Store) PutMany(ctx context.Context, jobs []ergate.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]any, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	if err := s.client.RPush(ctx, queueKey, ids...).Err(); err != nil {
		return fmt.Errorf("enqueueing batch: %w", err)
	}
	return nil
}
