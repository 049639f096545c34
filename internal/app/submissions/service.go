package submissions

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

// scanChunk is how many index entries a filtered listing reads per round trip.
const scanChunk = 500

// Service stores submissions and maintains each form's bounded, newest-first index.
//
// The record is the source of truth. Index and counter updates are best-effort: a failure there
// is logged and the submission still counts as stored.
type Service struct {
	repo  submissionrepo.Repository
	forms formrepo.Repository
	log   logrus.FieldLogger
}

func NewService(repo submissionrepo.Repository, forms formrepo.Repository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, forms: forms, log: logging.OrDiscard(log)}
}

func (s *Service) Put(ctx context.Context, sub domain.Submission) error {
	log := s.log.WithFields(logrus.Fields{"form_id": sub.FormID, "submission_id": sub.ID})

	if err := s.repo.SaveRecord(ctx, sub); err != nil {
		return apperr.Storage(err, "failed to store submission")
	}

	entry := domain.IndexEntry{SubmissionID: sub.ID, Timestamp: sub.ReceivedAt}
	if err := s.repo.PrependIndex(ctx, sub.FormID, entry, domain.MaxIndexEntries); err != nil {
		log.WithError(err).Error("failed to update submission index; record stored but unlisted")
	}
	if _, err := s.forms.AdjustSubmissionCount(ctx, sub.FormID, 1); err != nil {
		log.WithError(err).Warn("failed to increment form submission count")
	}
	return nil
}

func (s *Service) List(ctx context.Context, formID domain.FormID, opts ListOptions) (Page, error) {
	limit := clampLimit(opts.Limit)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	total, err := s.repo.IndexLen(ctx, formID)
	if err != nil {
		return Page{}, apperr.Storage(err, "failed to read submission index")
	}

	var entries []domain.IndexEntry
	if opts.Cursor == "" && opts.From.IsZero() && opts.To.IsZero() {
		entries, err = s.repo.ReadIndex(ctx, formID, offset, offset+limit+1)
		if err != nil {
			return Page{}, apperr.Storage(err, "failed to read submission index")
		}
	} else {
		var after *cursor
		if opts.Cursor != "" {
			c, err := decodeCursor(opts.Cursor)
			if err != nil {
				return Page{}, apperr.Validation(apperr.CodeValidation, "invalid cursor", map[string]any{"cursor": "malformed"})
			}
			after = &c
			offset = 0
		}
		entries, err = s.scan(ctx, formID, after, opts, offset, limit+1)
		if err != nil {
			return Page{}, err
		}
	}

	page := Page{Total: total, Items: make([]domain.Submission, 0, limit)}
	if len(entries) > limit {
		page.HasMore = true
		entries = entries[:limit]
	}
	for _, e := range entries {
		sub, err := s.repo.GetRecord(ctx, formID, e.SubmissionID)
		if err != nil {
			if errors.Is(err, submissionrepo.ErrNotFound) {
				continue
			}
			return Page{}, apperr.Storage(err, "failed to read submission")
		}
		page.Items = append(page.Items, sub)
	}
	if page.HasMore && len(entries) > 0 {
		page.NextCursor = encodeCursor(entries[len(entries)-1])
	}
	return page, nil
}

// scan walks the index in chunks, applying the cursor and date range, and returns up to want
// matching entries after skipping offset matches.
func (s *Service) scan(ctx context.Context, formID domain.FormID, after *cursor, opts ListOptions, offset, want int) ([]domain.IndexEntry, error) {
	out := make([]domain.IndexEntry, 0, want)
	past := after == nil
	skipped := 0

	for start := 0; ; start += scanChunk {
		chunk, err := s.repo.ReadIndex(ctx, formID, start, start+scanChunk)
		if err != nil {
			return nil, apperr.Storage(err, "failed to read submission index")
		}
		for _, e := range chunk {
			if !past {
				if e.SubmissionID == after.ID {
					past = true
					continue
				}
				// The cursor entry may have been deleted; resume at the first older entry.
				if !e.Timestamp.Before(after.TS) {
					continue
				}
				past = true
			}
			if !opts.To.IsZero() && e.Timestamp.After(opts.To) {
				continue
			}
			if !opts.From.IsZero() && e.Timestamp.Before(opts.From) {
				return out, nil
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, e)
			if len(out) >= want {
				return out, nil
			}
		}
		if len(chunk) < scanChunk {
			return out, nil
		}
	}
}

func (s *Service) Get(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (domain.Submission, bool, error) {
	sub, err := s.repo.GetRecord(ctx, formID, id)
	if err != nil {
		if errors.Is(err, submissionrepo.ErrNotFound) {
			return domain.Submission{}, false, nil
		}
		return domain.Submission{}, false, apperr.Storage(err, "failed to read submission")
	}
	return sub, true, nil
}

// Delete removes one submission. It reports false when the submission did not exist.
func (s *Service) Delete(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (bool, error) {
	log := s.log.WithFields(logrus.Fields{"form_id": formID, "submission_id": id})

	if err := s.repo.DeleteRecord(ctx, formID, id); err != nil {
		if errors.Is(err, submissionrepo.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Storage(err, "failed to delete submission")
	}
	if err := s.repo.RemoveFromIndex(ctx, formID, id); err != nil {
		log.WithError(err).Warn("failed to remove submission from index")
	}
	if _, err := s.forms.AdjustSubmissionCount(ctx, formID, -1); err != nil {
		log.WithError(err).Warn("failed to decrement form submission count")
	}
	return true, nil
}

// IndexedIDs returns the ids still present in the form's index, newest first.
func (s *Service) IndexedIDs(ctx context.Context, formID domain.FormID) ([]domain.SubmissionID, error) {
	entries, err := s.repo.ReadIndex(ctx, formID, 0, domain.MaxIndexEntries)
	if err != nil {
		return nil, apperr.Storage(err, "failed to read submission index")
	}
	ids := make([]domain.SubmissionID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SubmissionID)
	}
	return ids, nil
}

// DeleteAll removes every submission of the form and returns how many were removed.
func (s *Service) DeleteAll(ctx context.Context, formID domain.FormID) (int, error) {
	n, err := s.repo.DeleteAll(ctx, formID)
	if err != nil {
		return n, apperr.Storage(err, "failed to delete submissions")
	}
	if err := s.forms.ResetSubmissionCount(ctx, formID); err != nil {
		s.log.WithFields(logrus.Fields{"form_id": formID}).WithError(err).Warn("failed to reset form submission count")
	}
	return n, nil
}
