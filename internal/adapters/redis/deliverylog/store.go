package deliverylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/jasonsutter87/veilforms-api/internal/adapters/redis"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
)

// Store is a Redis implementation of deliverylog.Store.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

func NewStore(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) attemptsKey(id domain.SubmissionID) string {
	return redisadapter.Key(s.prefix, "attempts", string(id))
}

func (s *Store) quarantineKey(formID domain.FormID, id string) string {
	return redisadapter.Key(s.prefix, "quarantine", string(formID), id)
}

func (s *Store) quarantineIndexKey(formID domain.FormID) string {
	return redisadapter.Key(s.prefix, "quarantined", string(formID))
}

func (s *Store) AppendAttempt(ctx context.Context, id domain.SubmissionID, a domain.DeliveryAttempt, max int) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	key := s.attemptsKey(id)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		if max > 0 {
			pipe.LTrim(ctx, key, 0, int64(max-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, id domain.SubmissionID) ([]domain.DeliveryAttempt, error) {
	vals, err := s.client.LRange(ctx, s.attemptsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.DeliveryAttempt, 0, len(vals))
	for _, v := range vals {
		var a domain.DeliveryAttempt
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAttempts(ctx context.Context, id domain.SubmissionID) error {
	if err := s.client.Del(ctx, s.attemptsKey(id)).Err(); err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}
	return nil
}

func (s *Store) Quarantine(ctx context.Context, q domain.QuarantinedWebhook, max int) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quarantined webhook: %w", err)
	}
	idx := s.quarantineIndexKey(q.FormID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.quarantineKey(q.FormID, q.ID), raw, 0)
		pipe.LPush(ctx, idx, q.ID)
		if max > 0 {
			pipe.LTrim(ctx, idx, 0, int64(max-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("quarantine webhook: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuarantined(ctx context.Context, q domain.QuarantinedWebhook) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quarantined webhook: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.quarantineKey(q.FormID, q.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("update quarantined webhook: %w", err)
	}
	if !ok {
		return deliverylog.ErrNotFound
	}
	return nil
}

func (s *Store) GetQuarantined(ctx context.Context, formID domain.FormID, id string) (domain.QuarantinedWebhook, error) {
	raw, err := s.client.Get(ctx, s.quarantineKey(formID, id)).Bytes()
	if err != nil {
		if redisadapter.IsNil(err) {
			return domain.QuarantinedWebhook{}, deliverylog.ErrNotFound
		}
		return domain.QuarantinedWebhook{}, fmt.Errorf("get quarantined webhook: %w", err)
	}
	var q domain.QuarantinedWebhook
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.QuarantinedWebhook{}, fmt.Errorf("decode quarantined webhook: %w", err)
	}
	return q, nil
}

func (s *Store) ListQuarantined(ctx context.Context, formID domain.FormID, limit int) ([]domain.QuarantinedWebhook, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.LRange(ctx, s.quarantineIndexKey(formID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list quarantine index: %w", err)
	}
	out := make([]domain.QuarantinedWebhook, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuarantined(ctx, formID, id)
		if err != nil {
			if errors.Is(err, deliverylog.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) RemoveQuarantined(ctx context.Context, formID domain.FormID, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.quarantineKey(formID, id))
		pipe.LRem(ctx, s.quarantineIndexKey(formID), 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove quarantined webhook: %w", err)
	}
	return nil
}
