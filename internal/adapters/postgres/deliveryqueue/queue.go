package deliveryqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	clockport "github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
)

// Queue is a Postgres implementation of deliveryqueue.Queue.
//
// Claims use FOR UPDATE SKIP LOCKED so several dispatcher instances can poll the same table.
type Queue struct {
	pool *pgxpool.Pool
	clk  clockport.Clock
}

func NewQueue(pool *pgxpool.Pool, clk clockport.Clock) *Queue {
	return &Queue{pool: pool, clk: clk}
}

func (q *Queue) Enqueue(ctx context.Context, j deliveryqueue.Job) error {
	if q.pool == nil {
		return errors.New("nil postgres pool")
	}
	sub, err := json.Marshal(j.Submission)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	enqueuedAt := j.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = q.clk.Now()
	}
	_, err = q.pool.Exec(ctx, `
		INSERT INTO delivery_jobs (id, url, secret, submission, enqueued_at)
		VALUES ($1,$2,$3,$4::jsonb,$5)
		ON CONFLICT (id) DO NOTHING
	`,
		j.ID,
		j.URL,
		j.Secret,
		string(sub),
		enqueuedAt.UTC(),
	)
	return err
}

func (q *Queue) Claim(ctx context.Context, limit int, lease time.Duration) ([]deliveryqueue.Job, error) {
	if q.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	if limit <= 0 {
		limit = 1
	}
	now := q.clk.Now().UTC()
	rows, err := q.pool.Query(ctx, `
		WITH next AS (
			SELECT id
			FROM delivery_jobs
			WHERE lease_until IS NULL OR lease_until <= $1
			ORDER BY enqueued_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE delivery_jobs j
		SET lease_until = $2,
		    claims = j.claims + 1
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.url, j.secret, j.submission, j.enqueued_at, j.claims
	`, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []deliveryqueue.Job{}
	for rows.Next() {
		var (
			j   deliveryqueue.Job
			raw []byte
		)
		if err := rows.Scan(&j.ID, &j.URL, &j.Secret, &raw, &j.EnqueuedAt, &j.Claims); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &j.Submission); err != nil {
			return nil, fmt.Errorf("decode submission for job %s: %w", j.ID, err)
		}
		j.EnqueuedAt = j.EnqueuedAt.UTC()
		out = append(out, j)
	}
	return out, rows.Err()
}

func (q *Queue) Complete(ctx context.Context, id string) error {
	if q.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := q.pool.Exec(ctx, `DELETE FROM delivery_jobs WHERE id = $1`, id)
	return err
}
