// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the audit-log writer for model calls.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
)

// CreateAuditLog inserts one model-call record. Callers treat failures as
// best-effort; the error is returned so the caller can log it, but it must
// never change the caller-visible outcome of the request.
func CreateAuditLog(ctx context.Context, db *gorm.DB, rec *domain.AuditLog) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(rec).Error
}
