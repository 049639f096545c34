package idempotency

import (
	"context"
	"sync"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
)

type recordKey struct {
	form domain.FormID
	key  domain.IdempotencyKey
}

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	m     map[recordKey]idempotency.Record
	index map[domain.FormID][]domain.IdempotencyKey

	// FailGet and FailPut force errors, for exercising fail-open paths.
	FailGet error
	FailPut error
}

func NewStore() *Store {
	return &Store{
		m:     make(map[recordKey]idempotency.Record),
		index: make(map[domain.FormID][]domain.IdempotencyKey),
	}
}

func (s *Store) Get(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGet != nil {
		return idempotency.Record{}, false, s.FailGet
	}
	rec, ok := s.m[recordKey{formID, key}]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	rec.Response = append([]byte(nil), rec.Response...)
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut != nil {
		return s.FailPut
	}
	rec.Response = append([]byte(nil), rec.Response...)
	s.m[recordKey{formID, key}] = rec

	keys := append([]domain.IdempotencyKey{key}, s.index[formID]...)
	if len(keys) > idempotency.MaxKeysPerForm {
		keys = keys[:idempotency.MaxKeysPerForm]
	}
	s.index[formID] = keys
	return nil
}

func (s *Store) Delete(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, recordKey{formID, key})
	return nil
}

func (s *Store) DeleteForm(ctx context.Context, formID domain.FormID) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.index[formID] {
		rk := recordKey{formID, k}
		if _, ok := s.m[rk]; ok {
			delete(s.m, rk)
			n++
		}
	}
	delete(s.index, formID)
	return n, nil
}
