package formrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
)

// Repo is a Postgres implementation of formrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Get(ctx context.Context, id domain.FormID) (domain.Form, error) {
	if r.pool == nil {
		return domain.Form{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT owner_id, status, tier, allowed_origins, webhook_url, webhook_secret, submission_count
		FROM forms
		WHERE id = $1
	`, string(id))

	f := domain.Form{ID: id}
	var owner, status, tier string
	if err := row.Scan(&owner, &status, &tier, &f.AllowedOrigins, &f.WebhookURL, &f.WebhookSecret, &f.SubmissionCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Form{}, formrepo.ErrNotFound
		}
		return domain.Form{}, err
	}
	f.OwnerID = domain.OwnerID(owner)
	f.Status = domain.FormStatus(status)
	f.Tier = domain.Tier(tier)
	return f, nil
}

// Upsert inserts or replaces a form. The dashboard owns form CRUD; this exists for seeding and tests.
func (r *Repo) Upsert(ctx context.Context, f domain.Form) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	origins := f.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forms (id, owner_id, status, tier, allowed_origins, webhook_url, webhook_secret, submission_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			allowed_origins = EXCLUDED.allowed_origins,
			webhook_url = EXCLUDED.webhook_url,
			webhook_secret = EXCLUDED.webhook_secret,
			submission_count = EXCLUDED.submission_count,
			updated_at = now()
	`,
		string(f.ID),
		string(f.OwnerID),
		string(f.Status),
		string(f.Tier),
		origins,
		f.WebhookURL,
		f.WebhookSecret,
		f.SubmissionCount,
	)
	return err
}

func (r *Repo) AdjustSubmissionCount(ctx context.Context, id domain.FormID, delta int) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		UPDATE forms
		SET submission_count = GREATEST(submission_count + $2, 0),
		    updated_at = now()
		WHERE id = $1
		RETURNING submission_count
	`, string(id), delta).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, formrepo.ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

func (r *Repo) ResetSubmissionCount(ctx context.Context, id domain.FormID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE forms SET submission_count = 0, updated_at = now() WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return formrepo.ErrNotFound
	}
	return nil
}
