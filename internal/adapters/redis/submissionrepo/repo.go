package submissionrepo

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/jasonsutter87/veilforms-api/internal/adapters/redis"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

const scanBatch = 500

// Repo is a Redis implementation of submissionrepo.Repository.
//
// Records live at <prefix>:sub:<form>:<id>; the index is a list at <prefix>:subs:<form> holding
// JSON-encoded entries, newest at the head.
type Repo struct {
	client goredis.UniversalClient
	prefix string
}

func NewRepo(client goredis.UniversalClient, prefix string) *Repo {
	return &Repo{client: client, prefix: prefix}
}

func (r *Repo) recordKey(formID domain.FormID, id domain.SubmissionID) string {
	return redisadapter.Key(r.prefix, "sub", string(formID), string(id))
}

func (r *Repo) indexKey(formID domain.FormID) string {
	return redisadapter.Key(r.prefix, "subs", string(formID))
}

func (r *Repo) SaveRecord(ctx context.Context, s domain.Submission) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	if err := r.client.Set(ctx, r.recordKey(s.FormID, s.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

func (r *Repo) GetRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (domain.Submission, error) {
	raw, err := r.client.Get(ctx, r.recordKey(formID, id)).Bytes()
	if err != nil {
		if redisadapter.IsNil(err) {
			return domain.Submission{}, submissionrepo.ErrNotFound
		}
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	var s domain.Submission
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return s, nil
}

func (r *Repo) DeleteRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error {
	n, err := r.client.Del(ctx, r.recordKey(formID, id)).Result()
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if n == 0 {
		return submissionrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) PrependIndex(ctx context.Context, formID domain.FormID, e domain.IndexEntry, max int) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode index entry: %w", err)
	}
	key := r.indexKey(formID)
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		if max > 0 {
			pipe.LTrim(ctx, key, 0, int64(max-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prepend index entry: %w", err)
	}
	return nil
}

func (r *Repo) ReadIndex(ctx context.Context, formID domain.FormID, start, stop int) ([]domain.IndexEntry, error) {
	if start < 0 {
		start = 0
	}
	if stop <= start {
		return []domain.IndexEntry{}, nil
	}
	vals, err := r.client.LRange(ctx, r.indexKey(formID), int64(start), int64(stop-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	out := make([]domain.IndexEntry, 0, len(vals))
	for _, v := range vals {
		var e domain.IndexEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode index entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Repo) IndexLen(ctx context.Context, formID domain.FormID) (int, error) {
	n, err := r.client.LLen(ctx, r.indexKey(formID)).Result()
	if err != nil {
		return 0, fmt.Errorf("index length: %w", err)
	}
	return int(n), nil
}

func (r *Repo) RemoveFromIndex(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error {
	key := r.indexKey(formID)
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	for _, v := range vals {
		var e domain.IndexEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		if e.SubmissionID != id {
			continue
		}
		if err := r.client.LRem(ctx, key, 0, v).Err(); err != nil {
			return fmt.Errorf("remove index entry: %w", err)
		}
	}
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context, formID domain.FormID) (int, error) {
	pattern := redisadapter.Key(r.prefix, "sub", string(formID), "*")
	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("scan submissions: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete submissions: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := r.client.Del(ctx, r.indexKey(formID)).Err(); err != nil {
		return removed, fmt.Errorf("delete index: %w", err)
	}
	return removed, nil
}
