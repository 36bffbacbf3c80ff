// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the static
// Category catalog, including the free-text hint resolver.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// defaultCategories seeds a fresh database. "Other" is the reserved
// fallback for unmatched hints.
var defaultCategories = []domain.Category{
	{Name: "Food & Drinks", Icon: "🍔"},
	{Name: "Groceries", Icon: "🛒"},
	{Name: "Transport", Icon: "🚕"},
	{Name: "Housing & Bills", Icon: "🏠"},
	{Name: "Health", Icon: "💊"},
	{Name: "Shopping", Icon: "🛍️"},
	{Name: "Entertainment", Icon: "🎬"},
	{Name: "Travel", Icon: "✈️"},
	{Name: "Education", Icon: "📚"},
	{Name: domain.OtherCategoryName, Icon: "📦"},
}

// SeedCategories inserts the default catalog when the table is empty.
func SeedCategories(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&domain.Category{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range defaultCategories {
		c := defaultCategories[i]
		c.ID = uuid.NewString()
		// Staggered timestamps keep the catalog in declaration order.
		c.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := db.WithContext(ctx).Create(&c).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListCategories returns the catalog in insertion order.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ResolveCategory maps a free-text hint to a catalog entry using a
// case-insensitive substring match against display names; the first match in
// catalog order wins. An empty or unmatched hint falls back to the reserved
// "Other" category; if even that is absent, ErrNotFound is returned and the
// caller treats the category as unset.
func ResolveCategory(ctx context.Context, db *gorm.DB, hint string) (*domain.Category, error) {
	cats, err := ListCategories(ctx, db)
	if err != nil {
		return nil, err
	}
	if h := strings.ToLower(strings.TrimSpace(hint)); h != "" {
		for i := range cats {
			if strings.Contains(strings.ToLower(cats[i].Name), h) {
				return &cats[i], nil
			}
		}
	}
	for i := range cats {
		if cats[i].Name == domain.OtherCategoryName {
			return &cats[i], nil
		}
	}
	return nil, ErrNotFound
}

// FindCategoryByHint is ResolveCategory without the "Other" fallback, used
// by detail queries where an unknown filter must surface as an explicit
// not-found result.
func FindCategoryByHint(ctx context.Context, db *gorm.DB, hint string) (*domain.Category, error) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return nil, ErrNotFound
	}
	cats, err := ListCategories(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range cats {
		if strings.Contains(strings.ToLower(cats[i].Name), h) {
			return &cats[i], nil
		}
	}
	return nil, ErrNotFound
}
