package formrepo

import (
	"context"
	"sync"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
)

// Repo is an in-memory implementation of formrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu    sync.RWMutex
	forms map[domain.FormID]domain.Form
}

func NewRepo(forms ...domain.Form) *Repo {
	r := &Repo{forms: make(map[domain.FormID]domain.Form)}
	for _, f := range forms {
		r.forms[f.ID] = cloneForm(f)
	}
	return r
}

// Upsert stores f, replacing any existing form with the same id.
func (r *Repo) Upsert(f domain.Form) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[f.ID] = cloneForm(f)
}

func (r *Repo) Get(ctx context.Context, id domain.FormID) (domain.Form, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	if !ok {
		return domain.Form{}, formrepo.ErrNotFound
	}
	return cloneForm(f), nil
}

func (r *Repo) AdjustSubmissionCount(ctx context.Context, id domain.FormID, delta int) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		return 0, formrepo.ErrNotFound
	}
	f.SubmissionCount += delta
	if f.SubmissionCount < 0 {
		f.SubmissionCount = 0
	}
	r.forms[id] = f
	return f.SubmissionCount, nil
}

func (r *Repo) ResetSubmissionCount(ctx context.Context, id domain.FormID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		return formrepo.ErrNotFound
	}
	f.SubmissionCount = 0
	r.forms[id] = f
	return nil
}

func cloneForm(f domain.Form) domain.Form {
	f.AllowedOrigins = append([]string(nil), f.AllowedOrigins...)
	return f
}
