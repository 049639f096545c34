package deliverylog

import (
	"context"
	"sync"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
)

type quarantineKey struct {
	form domain.FormID
	id   string
}

// Store is an in-memory implementation of deliverylog.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	attempts   map[domain.SubmissionID][]domain.DeliveryAttempt
	quarantine map[quarantineKey]domain.QuarantinedWebhook
	index      map[domain.FormID][]string
}

func NewStore() *Store {
	return &Store{
		attempts:   make(map[domain.SubmissionID][]domain.DeliveryAttempt),
		quarantine: make(map[quarantineKey]domain.QuarantinedWebhook),
		index:      make(map[domain.FormID][]string),
	}
}

func (s *Store) AppendAttempt(ctx context.Context, id domain.SubmissionID, a domain.DeliveryAttempt, max int) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]domain.DeliveryAttempt{a}, s.attempts[id]...)
	if max > 0 && len(next) > max {
		next = next[:max]
	}
	s.attempts[id] = next
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, id domain.SubmissionID) ([]domain.DeliveryAttempt, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DeliveryAttempt{}, s.attempts[id]...), nil
}

func (s *Store) DeleteAttempts(ctx context.Context, id domain.SubmissionID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
	return nil
}

func (s *Store) Quarantine(ctx context.Context, q domain.QuarantinedWebhook, max int) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantine[quarantineKey{q.FormID, q.ID}] = q
	ids := append([]string{q.ID}, s.index[q.FormID]...)
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	s.index[q.FormID] = ids
	return nil
}

func (s *Store) UpdateQuarantined(ctx context.Context, q domain.QuarantinedWebhook) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	k := quarantineKey{q.FormID, q.ID}
	if _, ok := s.quarantine[k]; !ok {
		return deliverylog.ErrNotFound
	}
	s.quarantine[k] = q
	return nil
}

func (s *Store) GetQuarantined(ctx context.Context, formID domain.FormID, id string) (domain.QuarantinedWebhook, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quarantine[quarantineKey{formID, id}]
	if !ok {
		return domain.QuarantinedWebhook{}, deliverylog.ErrNotFound
	}
	return q, nil
}

func (s *Store) ListQuarantined(ctx context.Context, formID domain.FormID, limit int) ([]domain.QuarantinedWebhook, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.QuarantinedWebhook{}
	for _, id := range s.index[formID] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q, ok := s.quarantine[quarantineKey{formID, id}]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Store) RemoveQuarantined(ctx context.Context, formID domain.FormID, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quarantine, quarantineKey{formID, id})
	ids := s.index[formID]
	next := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			next = append(next, v)
		}
	}
	s.index[formID] = next
	return nil
}
