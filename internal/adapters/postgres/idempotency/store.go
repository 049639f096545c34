package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store.
//
// The table itself is the per-form key index, so DeleteForm removes every key of the form
// rather than only the newest MaxKeysPerForm.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT response, created_at
		FROM idempotency_keys
		WHERE form_id = $1
		  AND idempotency_key = $2
	`,
		string(formID),
		string(key),
	)
	var rec idempotency.Record
	if err := row.Scan(&rec.Response, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	response := rec.Response
	if response == nil {
		response = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			form_id,
			idempotency_key,
			response,
			created_at
		) VALUES ($1,$2,$3,$4)
		ON CONFLICT (form_id, idempotency_key)
		DO UPDATE SET
			response = EXCLUDED.response,
			created_at = EXCLUDED.created_at
	`,
		string(formID),
		string(key),
		response,
		createdAt.UTC(),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE form_id = $1 AND idempotency_key = $2`, string(formID), string(key))
	return err
}

func (s *Store) DeleteForm(ctx context.Context, formID domain.FormID) (int, error) {
	if s.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE form_id = $1`, string(formID))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
