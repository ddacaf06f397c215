package assistant

import (
	"context"

	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

// AuditSink records request/response pairs for completed model calls.
// Implementations must be best-effort: a failed write is logged and
// swallowed, never surfaced to the caller.
type AuditSink interface {
	Record(ctx context.Context, rec *domain.AuditLog)
}

// DBAudit persists audit rows through the repo layer.
type DBAudit struct {
	DB *gorm.DB
}

func (a DBAudit) Record(ctx context.Context, rec *domain.AuditLog) {
	if err := repo.CreateAuditLog(ctx, a.DB, rec); err != nil {
		logFor(ctx).Warn().Err(err).Msg("audit write failed")
	}
}

// NopAudit drops every record; used in tests and when auditing is disabled.
type NopAudit struct{}

func (NopAudit) Record(context.Context, *domain.AuditLog) {}
