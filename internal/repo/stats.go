// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
)

// TanksStats returns aggregate metadata for a user's tanks: the total number
// of rows and the maximum UpdatedAt timestamp among those rows. When the
// user has no tanks, the returned count is 0 and maxUpdatedAt is nil.
//
// The pair (count, maxUpdatedAt) changes whenever any tank is created,
// removed, or has its level updated, which makes it a cheap weak-ETag input
// for GET /tanks.
func TanksStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Tank{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
