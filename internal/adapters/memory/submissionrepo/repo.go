package submissionrepo

import (
	"context"
	"sync"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

type recordKey struct {
	form domain.FormID
	id   domain.SubmissionID
}

// Repo is an in-memory implementation of submissionrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	records map[recordKey]domain.Submission
	index   map[domain.FormID][]domain.IndexEntry

	// FailIndex forces index writes to fail, for exercising degraded-index paths.
	FailIndex error
}

func NewRepo() *Repo {
	return &Repo{
		records: make(map[recordKey]domain.Submission),
		index:   make(map[domain.FormID][]domain.IndexEntry),
	}
}

func (r *Repo) SaveRecord(ctx context.Context, s domain.Submission) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[recordKey{s.FormID, s.ID}] = s
	return nil
}

func (r *Repo) GetRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (domain.Submission, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.records[recordKey{formID, id}]
	if !ok {
		return domain.Submission{}, submissionrepo.ErrNotFound
	}
	return s, nil
}

func (r *Repo) DeleteRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	k := recordKey{formID, id}
	if _, ok := r.records[k]; !ok {
		return submissionrepo.ErrNotFound
	}
	delete(r.records, k)
	return nil
}

func (r *Repo) PrependIndex(ctx context.Context, formID domain.FormID, e domain.IndexEntry, max int) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailIndex != nil {
		return r.FailIndex
	}
	cur := r.index[formID]
	next := make([]domain.IndexEntry, 0, len(cur)+1)
	next = append(next, e)
	next = append(next, cur...)
	if max > 0 && len(next) > max {
		next = next[:max]
	}
	r.index[formID] = next
	return nil
}

func (r *Repo) ReadIndex(ctx context.Context, formID domain.FormID, start, stop int) ([]domain.IndexEntry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur := r.index[formID]
	if start < 0 {
		start = 0
	}
	if stop > len(cur) {
		stop = len(cur)
	}
	if start >= stop {
		return []domain.IndexEntry{}, nil
	}
	out := make([]domain.IndexEntry, stop-start)
	copy(out, cur[start:stop])
	return out, nil
}

func (r *Repo) IndexLen(ctx context.Context, formID domain.FormID) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index[formID]), nil
}

func (r *Repo) RemoveFromIndex(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailIndex != nil {
		return r.FailIndex
	}
	cur := r.index[formID]
	next := make([]domain.IndexEntry, 0, len(cur))
	for _, e := range cur {
		if e.SubmissionID != id {
			next = append(next, e)
		}
	}
	r.index[formID] = next
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context, formID domain.FormID) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.records {
		if k.form == formID {
			delete(r.records, k)
			n++
		}
	}
	delete(r.index, formID)
	return n, nil
}

// RecordCount returns how many records exist for the form, indexed or not.
func (r *Repo) RecordCount(formID domain.FormID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.records {
		if k.form == formID {
			n++
		}
	}
	return n
}
