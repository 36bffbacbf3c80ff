// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Transaction model and its reporting aggregations.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// CreateTransaction inserts a transaction, filling id and creation time when
// absent. Home and USD amounts must already be computed by the caller
// through the current rate snapshot; they are never derived here.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(t).Error
}

// CategorySummary is one aggregation row of SummarizeByCategory. Total is in
// the profile's home currency.
type CategorySummary struct {
	CategoryName string  `json:"category"`
	Total        float64 `json:"total"`
	Count        int64   `json:"count"`
}

// SummarizeByCategory aggregates a profile's transactions in [from, to) by
// category, ordered by total descending. Uncategorized rows are reported
// under the reserved "Other" name.
func SummarizeByCategory(ctx context.Context, db *gorm.DB, profileID string, from, to time.Time) ([]CategorySummary, error) {
	var out []CategorySummary
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(c.name, ?) AS category_name,
		       SUM(t.amount_home)  AS total,
		       COUNT(*)            AS count
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.profile_id = ? AND t.created_at >= ? AND t.created_at < ?
		GROUP BY category_name
		ORDER BY total DESC`,
		domain.OtherCategoryName, profileID, from, to,
	).Scan(&out).Error
	return out, err
}

// ListTransactions returns a profile's transactions in [from, to) for one
// category, newest first.
func ListTransactions(ctx context.Context, db *gorm.DB, profileID, categoryID string, from, to time.Time, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	q := db.WithContext(ctx).
		Where("profile_id = ? AND category_id = ? AND created_at >= ? AND created_at < ?",
			profileID, categoryID, from, to).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
