package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/ports/out/audit"
)

// AuditLogger writes account events as structured log lines.
type AuditLogger struct {
	log logrus.FieldLogger
}

func NewAuditLogger(log logrus.FieldLogger) *AuditLogger {
	return &AuditLogger{log: OrDiscard(log)}
}

func (a *AuditLogger) Record(_ context.Context, e audit.Event) {
	fields := logrus.Fields{
		"audit":    true,
		"event":    e.Type,
		"owner_id": e.OwnerID,
		"form_id":  e.FormID,
	}
	for k, v := range e.Details {
		fields["detail_"+k] = v
	}
	entry := a.log.WithFields(fields)
	if !e.At.IsZero() {
		entry = entry.WithTime(e.At)
	}
	entry.Info("audit event")
}
