// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Tank model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a tank is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTank inserts a new Tank row owned by userID. The tank ID is a
// randomly generated UUID and CreatedAt is set to UTC.
func CreateTank(ctx context.Context, db *gorm.DB, t *domain.Tank) (*domain.Tank, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListTanks returns all tanks belonging to userID, ordered by creation time
// ascending so dashboards render in a stable order. It returns an empty
// slice when the user has no tanks.
func ListTanks(ctx context.Context, db *gorm.DB, userID string) ([]domain.Tank, error) {
	var out []domain.Tank
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListAllTanks returns every tank regardless of owner. Used by the
// unauthenticated demo views.
func ListAllTanks(ctx context.Context, db *gorm.DB) ([]domain.Tank, error) {
	var out []domain.Tank
	err := db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// GetTank fetches a single tank by its ID and owner. If the record does not
// exist it returns ErrNotFound.
func GetTank(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Tank, error) {
	var t domain.Tank
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTank applies the given column updates to a tank identified by id and
// owned by userID. If no rows are affected (tank missing or not owned),
// it returns ErrNotFound.
func UpdateTank(ctx context.Context, db *gorm.DB, id, userID string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Tank{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
