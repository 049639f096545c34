package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/jasonsutter87/veilforms-api/internal/adapters/redis"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
)

// RetentionTTL is how long Redis keeps a record physically. Logical expiry (24h) is enforced by
// the caller; this only bounds how long stale records linger if nobody reads them.
const RetentionTTL = 48 * time.Hour

type storedRecord struct {
	Response  []byte    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is a Redis implementation of idempotency.Store.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

func NewStore(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(formID domain.FormID, key domain.IdempotencyKey) string {
	return redisadapter.Key(s.prefix, "idem", string(formID), string(key))
}

func (s *Store) indexKey(formID domain.FormID) string {
	return redisadapter.Key(s.prefix, "idem-keys", string(formID))
}

func (s *Store) Get(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) (idempotency.Record, bool, error) {
	raw, err := s.client.Get(ctx, s.recordKey(formID, key)).Bytes()
	if err != nil {
		if redisadapter.IsNil(err) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("get idempotency record: %w", err)
	}
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return idempotency.Record{Response: sr.Response, CreatedAt: sr.CreatedAt.UTC()}, true, nil
}

func (s *Store) Put(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey, rec idempotency.Record) error {
	raw, err := json.Marshal(storedRecord{Response: rec.Response, CreatedAt: rec.CreatedAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(formID, key), raw, RetentionTTL).Err(); err != nil {
		return fmt.Errorf("set idempotency record: %w", err)
	}
	// The key index is advisory; a failure here only weakens bulk cleanup.
	idx := s.indexKey(formID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, idx, string(key))
		pipe.LTrim(ctx, idx, 0, idempotency.MaxKeysPerForm-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index idempotency key: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) error {
	if err := s.client.Del(ctx, s.recordKey(formID, key)).Err(); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

func (s *Store) DeleteForm(ctx context.Context, formID domain.FormID) (int, error) {
	idx := s.indexKey(formID)
	keys, err := s.client.LRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read idempotency key index: %w", err)
	}
	seen := make(map[string]struct{}, len(keys))
	toDelete := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		toDelete = append(toDelete, s.recordKey(formID, domain.IdempotencyKey(k)))
	}
	removed := int64(0)
	if len(toDelete) > 0 {
		removed, err = s.client.Del(ctx, toDelete...).Result()
		if err != nil {
			return 0, fmt.Errorf("delete idempotency records: %w", err)
		}
	}
	if err := s.client.Del(ctx, idx).Err(); err != nil {
		return int(removed), fmt.Errorf("delete idempotency key index: %w", err)
	}
	return int(removed), nil
}
